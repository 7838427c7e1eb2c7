// Package config defines service configuration structures and loading hooks.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// Environment names the deployment, e.g. development or production.
	Environment string `koanf:"environment"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// PipelineSecret guards POST and DELETE /pipeline.
	PipelineSecret string `koanf:"pipeline_secret"`

	// RequestTimeout bounds every HTTP request.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// FreshFor, StaleFor and MaxAge are the cache freshness windows.
	FreshFor time.Duration `koanf:"fresh_for"`
	StaleFor time.Duration `koanf:"stale_for"`
	MaxAge   time.Duration `koanf:"max_age"`

	// CacheDir is where cache records live. Empty keeps them in memory.
	CacheDir string `koanf:"cache_dir"`

	// CacheMaxBytes caps the cache medium. Zero means unlimited.
	CacheMaxBytes int64 `koanf:"cache_max_bytes"`

	// CacheKeyPrefix prefixes every cache record name.
	CacheKeyPrefix string `koanf:"cache_key_prefix"`

	// DefaultTiers is the tier count used when a request gives none.
	DefaultTiers int `koanf:"default_tiers"`

	// TierMultipliers overrides positional value multipliers per format.
	TierMultipliers map[string]map[string]float64 `koanf:"tier_multipliers"`

	// PolitenessDelay is the minimum gap between upstream calls.
	PolitenessDelay time.Duration `koanf:"politeness_delay"`

	// PipelineWorkers bounds concurrent pairs in a pipeline run.
	PipelineWorkers int `koanf:"pipeline_workers"`

	// RefreshInterval is how often stale pairs are refreshed. Zero disables it.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// RefreshTimeout bounds one background refresh.
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`

	// RefreshWorkers is how many background refreshes run at once.
	RefreshWorkers int `koanf:"refresh_workers"`

	// RefreshFormats limits background refreshes to these formats.
	RefreshFormats []string `koanf:"refresh_formats"`

	// UpstreamURL, UpstreamAPIKey and UpstreamTimeout configure the provider.
	UpstreamURL     string        `koanf:"upstream_url"`
	UpstreamAPIKey  string        `koanf:"upstream_api_key"`
	UpstreamTimeout time.Duration `koanf:"upstream_timeout"`

	// DatabaseURL enables the Postgres dataset store. Empty keeps datasets in memory.
	DatabaseURL string `koanf:"database_url"`

	// KafkaBrokers and KafkaTopic enable publishing pipeline reports.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`

	// S3Bucket and S3Prefix enable archiving pipeline reports.
	S3Bucket string `koanf:"s3_bucket"`
	S3Prefix string `koanf:"s3_prefix"`

	// IdempotencyTTL and IdempotencySize bound remembered Idempotency-Key values.
	IdempotencyTTL  time.Duration `koanf:"idempotency_ttl"`
	IdempotencySize int           `koanf:"idempotency_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		Environment:     "development",
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":8080",
		RequestTimeout:  2 * time.Minute,
		FreshFor:        30 * time.Minute,
		StaleFor:        2 * time.Hour,
		MaxAge:          24 * time.Hour,
		CacheMaxBytes:   5 << 20,
		CacheKeyPrefix:  "fp_cache_",
		DefaultTiers:    8,
		PolitenessDelay: 50 * time.Millisecond,
		PipelineWorkers: 4,
		RefreshInterval: 5 * time.Minute,
		RefreshTimeout:  2 * time.Minute,
		RefreshWorkers:  2,
		UpstreamURL:     "https://api.fantasypros.com/public/v2/json/nfl",
		UpstreamTimeout: 10 * time.Second,
		KafkaTopic:      "draftboard.pipeline-reports",
		IdempotencyTTL:  24 * time.Hour,
		IdempotencySize: 10_000,
	}
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
