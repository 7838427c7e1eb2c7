package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // postgres driver

	"github.com/okian/draftboard/internal/adapters/cache"
	"github.com/okian/draftboard/internal/adapters/http/api"
	"github.com/okian/draftboard/internal/adapters/repository"
	"github.com/okian/draftboard/internal/adapters/sample"
	"github.com/okian/draftboard/internal/adapters/sink"
	"github.com/okian/draftboard/internal/adapters/upstream"
	app "github.com/okian/draftboard/internal/app"
	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/internal/config"
	"github.com/okian/draftboard/internal/domain/dedupe"
	"github.com/okian/draftboard/internal/domain/scoring"
	"github.com/okian/draftboard/internal/domain/tiers"
	"github.com/okian/draftboard/pkg/logger"
)

// components is the wired object graph shared by every subcommand.
type components struct {
	cache    *cache.Store
	pipeline *pipeline.Orchestrator
	service  *app.Service
	api      *api.Server

	closers []func() error
}

// Close releases sinks and database handles in reverse order of creation.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// wire builds every component from cfg. On error anything already opened is closed.
func wire(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	store, err := cache.New(
		cache.WithFilesystem(cache.Filesystem(cfg.CacheDir)),
		cache.WithWindows(cfg.FreshFor, cfg.StaleFor, cfg.MaxAge),
		cache.WithKeyPrefix(cfg.CacheKeyPrefix),
		cache.WithMaxBytes(cfg.CacheMaxBytes),
		cache.WithLogger(log.Named("cache")),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	c.cache = store

	datasets, err := openDatasetStore(ctx, cfg, c)
	if err != nil {
		return nil, err
	}

	samples, err := sample.Builtin()
	if err != nil {
		return nil, fmt.Errorf("load sample dataset: %w", err)
	}

	fetcher := upstream.New(cfg.UpstreamURL,
		upstream.WithAPIKey(cfg.UpstreamAPIKey),
		upstream.WithTimeout(cfg.UpstreamTimeout),
		upstream.WithLogger(log.Named("upstream")),
	)

	pipeOpts := []pipeline.Option{
		pipeline.WithWorkers(cfg.PipelineWorkers),
		pipeline.WithPolitenessDelay(cfg.PolitenessDelay),
		pipeline.WithDatasetStore(datasets),
		pipeline.WithSampleProvider(samples),
		pipeline.WithLogger(log.Named("pipeline")),
	}
	sinks, err := openSinks(ctx, cfg, log, c)
	if err != nil {
		return nil, err
	}
	for _, s := range sinks {
		pipeOpts = append(pipeOpts, pipeline.WithReportSink(s))
	}
	c.pipeline = pipeline.New(store, fetcher, pipeOpts...)

	valuer := scoring.NewValuer(scoring.WithMultipliers(cfg.TierMultipliers))
	c.service = app.New(store, c.pipeline,
		app.WithDatasetStore(datasets),
		app.WithSampleProvider(samples),
		app.WithClusterer(tiers.New(tiers.WithValuer(valuer), tiers.WithDefaultTiers(cfg.DefaultTiers))),
		app.WithDeduper(dedupe.NewInMemoryDeduper(
			dedupe.WithMaxSize(cfg.IdempotencySize),
			dedupe.WithTTL(cfg.IdempotencyTTL),
		)),
		app.WithRefreshInterval(cfg.RefreshInterval),
		app.WithRefreshTimeout(cfg.RefreshTimeout),
		app.WithRefreshWorkers(cfg.RefreshWorkers),
		app.WithTrackedFormats(cfg.Formats()...),
		app.WithLogger(log.Named("service")),
	)

	c.api = api.NewServer(c.service,
		api.WithAuthenticator(api.NewAuthenticator(cfg.PipelineSecret, cfg.Environment)),
		api.WithRequestTimeout(cfg.RequestTimeout),
		api.WithLogger(log.Named("api")),
	)
	return c, nil
}

// openDatasetStore returns Postgres when a database URL is configured and an
// in-memory store otherwise.
func openDatasetStore(ctx context.Context, cfg *config.Config, c *components) (repository.DatasetStore, error) {
	if cfg.DatabaseURL == "" {
		return repository.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.closers = append(c.closers, db.Close)

	pg := repository.NewPGStore(db)
	if err := pg.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return pg, nil
}

// openSinks creates the report sinks that are configured.
func openSinks(ctx context.Context, cfg *config.Config, log logger.Logger, c *components) ([]pipeline.ReportSink, error) {
	var sinks []pipeline.ReportSink

	if len(cfg.KafkaBrokers) > 0 {
		k, err := sink.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, sink.WithLogger(log.Named("sink.kafka")))
		if err != nil {
			return nil, fmt.Errorf("create kafka sink: %w", err)
		}
		c.closers = append(c.closers, k.Close)
		sinks = append(sinks, k)
	}

	if cfg.S3Bucket != "" {
		s, err := sink.NewS3(ctx, cfg.S3Bucket,
			sink.WithPrefix(cfg.S3Prefix),
			sink.WithLogger(log.Named("sink.s3")),
		)
		if err != nil {
			return nil, fmt.Errorf("create s3 sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
