// Package pipeline fetches ranked datasets for many (group, format) pairs,
// falling back through the cache and the built-in samples when the upstream
// provider fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/draftboard/internal/adapters/cache"
	"github.com/okian/draftboard/internal/adapters/repository"
	"github.com/okian/draftboard/internal/adapters/sample"
	"github.com/okian/draftboard/internal/adapters/upstream"
	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/pkg/logger"
	"github.com/okian/draftboard/pkg/metrics"
)

// Cache is the part of the cache store the orchestrator needs.
type Cache interface {
	Lookup(ctx context.Context, g model.Group, f model.Format) (*cache.Entry, model.CacheStatus)
	SetWithEviction(ctx context.Context, g model.Group, f model.Format, players []model.Player, source model.Source) error
	Clear(ctx context.Context) (int, error)
	PurgeOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// ReportSink receives finished run reports.
type ReportSink interface {
	Name() string
	Deliver(ctx context.Context, r *Report) error
}

// Orchestrator runs the fetch-with-fallback algorithm.
type Orchestrator struct {
	cache       Cache
	fetcher     upstream.Fetcher
	store       repository.DatasetStore
	samples     sample.Provider
	sinks       []ReportSink
	workers     int
	delay       time.Duration
	limiter     *rate.Limiter
	sinkTimeout time.Duration
	now         func() time.Time
	log         logger.Logger
}

// New creates an Orchestrator over the given cache and upstream fetcher.
func New(c Cache, fetcher upstream.Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:       c,
		fetcher:     fetcher,
		workers:     DefaultWorkers,
		delay:       DefaultPolitenessDelay,
		sinkTimeout: DefaultSinkTimeout,
		now:         time.Now,
		log:         logger.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}

	// One token per delay, shared by every worker.
	if o.delay > 0 {
		o.limiter = rate.NewLimiter(rate.Every(o.delay), 1)
	} else {
		o.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return o
}

// Run processes every pair in the request and returns the report. Per-item
// failures are recorded in the report; only an invalid request is an error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	pairs, err := req.Pairs()
	if err != nil {
		return nil, err
	}

	rep := &Report{
		ExecutionID: uuid.NewString(),
		StartedAt:   o.now(),
		Outcomes:    make([]Outcome, len(pairs)),
	}
	o.log.Info(ctx, "pipeline run started",
		logger.String("execution_id", rep.ExecutionID),
		logger.Int("pairs", len(pairs)),
		logger.Bool("force_refresh", req.ForceRefresh))

	var eg errgroup.Group
	eg.SetLimit(o.workers)
	for i, p := range pairs {
		eg.Go(func() error {
			out, _ := o.resolve(ctx, p.Group, p.Format, req.ForceRefresh, req.UpdateCache)
			rep.Outcomes[i] = out
			return nil
		})
	}
	_ = eg.Wait()

	rep.finish(o.now())
	metrics.RecordPipelineRun(rep.Success, float64(rep.DurationMs))
	o.log.Info(ctx, "pipeline run finished",
		logger.String("execution_id", rep.ExecutionID),
		logger.Int("successes", rep.Successes),
		logger.Int("failures", rep.Failures),
		logger.Int("stored", rep.TotalStored),
		logger.Int64("duration_ms", rep.DurationMs),
		logger.Bool("success", rep.Success))

	o.deliver(ctx, rep)
	return rep, nil
}

// Resolve runs the fallback chain for a single pair and always refreshes the
// cache on a successful fetch. The players are nil only when every source is
// exhausted.
func (o *Orchestrator) Resolve(ctx context.Context, g model.Group, f model.Format, force bool) (Outcome, []model.Player) {
	return o.resolve(ctx, g, f, force, true)
}

func (o *Orchestrator) resolve(ctx context.Context, g model.Group, f model.Format, force, updateCache bool) (Outcome, []model.Player) {
	start := o.now()
	out := Outcome{Group: g, Format: f}
	defer func() {
		out.DurationMs = o.now().Sub(start).Milliseconds()
		source := string(out.Source)
		if source == "" {
			source = "none"
		}
		metrics.RecordPipelineOutcome(source, out.Success)
	}()

	entry, status := o.cache.Lookup(ctx, g, f)
	if !force && status == model.StatusFresh && entry != nil {
		out.Success, out.Source, out.Count = true, model.SourceCache, len(entry.Data)
		return out, entry.Data
	}

	players, err := o.fetch(ctx, g, f)
	if err == nil {
		out.Success, out.Source, out.Count = true, model.SourceAPI, len(players)
		if updateCache {
			if err := o.cache.SetWithEviction(ctx, g, f, players, model.SourceAPI); err != nil {
				o.log.Warn(ctx, "cache write failed",
					logger.String("group", string(g)),
					logger.String("format", string(f)),
					logger.Error(err))
			} else {
				out.Stored = true
			}
		}
		o.persist(ctx, g, f, players)
		return out, players
	}

	out.Error = err.Error()
	if entry != nil {
		out.Success, out.Source, out.Count = true, model.SourceCacheStale, len(entry.Data)
		o.log.Warn(ctx, "serving stale cache after fetch failure",
			logger.String("group", string(g)),
			logger.String("format", string(f)),
			logger.Error(err))
		return out, entry.Data
	}

	if o.samples != nil {
		if data, ok := o.samples.For(g); ok {
			out.Success, out.Source, out.Count = true, model.SourceSample, len(data)
			o.log.Warn(ctx, "serving sample dataset after fetch failure",
				logger.String("group", string(g)),
				logger.String("format", string(f)),
				logger.Error(err))
			return out, data
		}
	}

	out.Error = fmt.Errorf("%w: %s/%s: %v", ErrAllSourcesExhausted, g, f, err).Error()
	o.log.Error(ctx, "all sources exhausted",
		logger.String("group", string(g)),
		logger.String("format", string(f)),
		logger.Error(err))
	return out, nil
}

func (o *Orchestrator) fetch(ctx context.Context, g model.Group, f model.Format) ([]model.Player, error) {
	if o.fetcher == nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", g, f, upstream.ErrTransientFetch)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pace %s/%s: %w", g, f, err)
	}
	return o.fetcher.Fetch(ctx, g, f)
}

func (o *Orchestrator) persist(ctx context.Context, g model.Group, f model.Format, players []model.Player) {
	if o.store == nil {
		return
	}
	err := o.store.Save(ctx, repository.Dataset{
		Group:     g,
		Format:    f,
		Players:   players,
		Source:    model.SourceAPI,
		UpdatedAt: o.now(),
	})
	if err != nil {
		o.log.Warn(ctx, "dataset persist failed",
			logger.String("group", string(g)),
			logger.String("format", string(f)),
			logger.Error(err))
	}
}

func (o *Orchestrator) deliver(ctx context.Context, rep *Report) {
	if len(o.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.sinkTimeout)
	defer cancel()
	for _, s := range o.sinks {
		if err := s.Deliver(ctx, rep); err != nil {
			metrics.RecordSinkError(s.Name())
			o.log.Warn(ctx, "report delivery failed",
				logger.String("sink", s.Name()),
				logger.String("execution_id", rep.ExecutionID),
				logger.Error(err))
		}
	}
}

// Purge removes cache records and persisted datasets older than days. With
// clearCache every cache record goes regardless of age.
func (o *Orchestrator) Purge(ctx context.Context, days int, clearCache bool) (PurgeResult, error) {
	if days < 0 {
		return PurgeResult{}, fmt.Errorf("%w: days must not be negative", ErrInvalidRequest)
	}
	res := PurgeResult{Days: days, CacheCleared: clearCache}
	age := time.Duration(days) * 24 * time.Hour

	var errs []error
	var err error
	if clearCache {
		res.CacheRemoved, err = o.cache.Clear(ctx)
	} else {
		res.CacheRemoved, err = o.cache.PurgeOlderThan(ctx, age)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("purge cache: %w", err))
	}

	if o.store != nil {
		res.DatasetsRemoved, err = o.store.PurgeOlderThan(ctx, o.now().Add(-age))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge datasets: %w", err))
		}
	}

	o.log.Info(ctx, "purge completed",
		logger.Int("days", days),
		logger.Bool("clear_cache", clearCache),
		logger.Int("cache_removed", res.CacheRemoved),
		logger.Int("datasets_removed", res.DatasetsRemoved))
	return res, errors.Join(errs...)
}
