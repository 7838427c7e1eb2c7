package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/draftboard/internal/domain/model"
)

// Env names.
const (
	EnvPrefix     = "DRAFTBOARD_"
	EnvConfigFile = "DRAFTBOARD_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if DRAFTBOARD_CONFIG is set
//  3. env (prefix DRAFTBOARD_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like DRAFTBOARD_CACHE_DIR -> cache_dir (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}
	// DRAFTBOARD_CONFIG names the file, it is not a setting.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and cross-field rules.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Addr == "" {
		invalid("addr must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		invalid("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.FreshFor <= 0 || c.StaleFor < c.FreshFor || c.MaxAge < c.StaleFor {
		invalid("windows must satisfy 0 < fresh_for <= stale_for <= max_age")
	}
	if c.CacheMaxBytes < 0 {
		invalid("cache_max_bytes must not be negative")
	}
	if c.DefaultTiers < 1 {
		invalid("default_tiers must be at least 1")
	}
	if c.PolitenessDelay < 0 {
		invalid("politeness_delay must not be negative")
	}
	if c.PipelineWorkers < 1 {
		invalid("pipeline_workers must be at least 1")
	}
	if c.RefreshInterval < 0 {
		invalid("refresh_interval must not be negative")
	}
	if c.RefreshTimeout <= 0 {
		invalid("refresh_timeout must be positive")
	}
	if c.RefreshWorkers < 1 {
		invalid("refresh_workers must be at least 1")
	}
	for _, f := range c.RefreshFormats {
		if _, err := model.ParseFormat(f); err != nil {
			invalid("refresh_formats: %v", err)
		}
	}
	if c.UpstreamTimeout <= 0 {
		invalid("upstream_timeout must be positive")
	}
	if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid("upstream_url must be an absolute URL, got %q", c.UpstreamURL)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		invalid("kafka_topic is required when kafka_brokers is set")
	}
	return errors.Join(errs...)
}

// Formats returns RefreshFormats parsed, or nil when none are set.
func (c *Config) Formats() []model.Format {
	var out []model.Format
	for _, s := range c.RefreshFormats {
		if f, err := model.ParseFormat(s); err == nil {
			out = append(out, f)
		}
	}
	return out
}
