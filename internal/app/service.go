// Package service is the read and write surface over the cache, the pipeline
// and the durable dataset store. It implements the dependencies required by
// the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/draftboard/internal/adapters/cache"
	"github.com/okian/draftboard/internal/adapters/mq/queue"
	"github.com/okian/draftboard/internal/adapters/mq/worker"
	"github.com/okian/draftboard/internal/adapters/repository"
	"github.com/okian/draftboard/internal/adapters/sample"
	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/internal/domain/dedupe"
	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/internal/domain/tiers"
	"github.com/okian/draftboard/pkg/logger"
	"github.com/okian/draftboard/pkg/metrics"
)

// Defaults for the background refresh.
const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultRefreshTimeout  = 2 * time.Minute
	DefaultRefreshWorkers  = 2
	stopTimeout            = 30 * time.Second
)

// Service implements the API dependencies for the rankings system.
type Service struct {
	mu sync.RWMutex

	// Core components
	cache     *cache.Store
	pipeline  *pipeline.Orchestrator
	store     repository.DatasetStore
	samples   sample.Provider
	clusterer *tiers.Clusterer
	deduper   dedupe.Deduper
	loads     singleflight.Group

	// Configuration
	refreshInterval time.Duration
	refreshTimeout  time.Duration
	refreshWorkers  int
	formats         []model.Format
	warmUp          bool

	// State
	started bool
	stopCh  chan struct{}
	jobs    *queue.InMemoryQueue
	pool    *worker.Pool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// New constructs a Service over an explicit cache and orchestrator.
func New(c *cache.Store, p *pipeline.Orchestrator, opts ...Option) *Service {
	s := &Service{
		cache:           c,
		pipeline:        p,
		store:           repository.NewMemoryStore(),
		clusterer:       tiers.New(),
		deduper:         dedupe.NewInMemoryDeduper(),
		refreshInterval: DefaultRefreshInterval,
		refreshTimeout:  DefaultRefreshTimeout,
		refreshWorkers:  DefaultRefreshWorkers,
		formats:         model.AllFormats,
		warmUp:          true,
		logger:          logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start restores persisted datasets into empty cache slots and starts the
// background refresh loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting rankings service...")

	if s.warmUp {
		restored, err := s.restore(ctx)
		if err != nil {
			s.logger.Warn(ctx, "cache warm-up failed", logger.Error(err))
		} else {
			s.logger.Info(ctx, "cache warm-up finished", logger.Int("restored", restored))
		}
	}

	if s.baseCtx.Err() != nil {
		s.baseCtx, s.cancel = context.WithCancel(context.Background())
	}
	s.stopCh = make(chan struct{})
	if s.pipeline != nil {
		s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(len(model.AllGroups) * len(model.AllFormats)))
		s.pool = worker.NewPool(s.refreshWorkers, s.jobs, s.refreshPair,
			worker.WithName("refresh"),
			worker.WithJobTimeout(s.refreshTimeout),
			worker.WithLogger(s.logger.Named("refresh")),
		)
		s.pool.Start(s.baseCtx)
	}
	if s.refreshInterval > 0 && s.pipeline != nil {
		s.wg.Add(1)
		go s.refreshLoop(s.baseCtx, s.stopCh)
	}

	s.started = true
	s.logger.Info(ctx, "rankings service started",
		logger.Duration("refreshInterval", s.refreshInterval),
		logger.Int("trackedPairs", len(model.AllGroups)*len(s.formats)),
	)
	return nil
}

// Stop halts the refresh loop and waits for in-flight refreshes.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.logger.Info(context.Background(), "stopping rankings service...")
	close(s.stopCh)
	s.cancel()
	pool := s.pool
	s.pool = nil
	s.started = false
	s.mu.Unlock()

	if pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "refresh workers did not stop in time", logger.Error(err))
		}
		cancel()
	}
	s.wg.Wait()
	s.logger.Info(context.Background(), "rankings service stopped")
}

func (s *Service) restore(ctx context.Context) (int, error) {
	datasets, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list datasets: %w", err)
	}
	restored := 0
	for _, d := range datasets {
		if s.cache.Status(ctx, d.Group, d.Format) != model.StatusMissing {
			continue
		}
		ok, err := s.cache.Restore(ctx, cache.Entry{
			Data:      d.Players,
			Timestamp: d.UpdatedAt,
			Source:    d.Source,
			Group:     d.Group,
			Format:    d.Format,
		})
		if err != nil {
			s.logger.Warn(ctx, "restore failed",
				logger.String("group", string(d.Group)),
				logger.String("format", string(d.Format)),
				logger.Error(err))
			continue
		}
		if ok {
			restored++
		}
	}
	return restored, nil
}

// Get returns the best available dataset. Fresh cache is returned as is.
// Stale cache is returned tagged cache-stale while a refresh runs in the
// background. When no refresh can be queued, as before Start, a stale pair
// resolves synchronously like a cold one. An error is returned only when
// every source is exhausted or the caller gives up.
func (s *Service) Get(ctx context.Context, g model.Group, f model.Format) (Result, error) {
	res := Result{Group: g, Format: f}
	if !g.Valid() || !f.Valid() {
		return res, fmt.Errorf("get %s/%s: %w", g, f, ErrInvalidInput)
	}

	entry, status := s.cache.Lookup(ctx, g, f)
	res.CacheStatus = status
	switch status {
	case model.StatusFresh:
		res.Players, res.Source = entry.Data, model.SourceCache
		return res, nil
	case model.StatusStale:
		if s.refreshAsync(g, f) {
			res.Players, res.Source = entry.Data, model.SourceCacheStale
			return res, nil
		}
	}

	if s.pipeline == nil {
		if status == model.StatusStale {
			res.Players, res.Source = entry.Data, model.SourceCacheStale
			return res, nil
		}
		return res, fmt.Errorf("get %s/%s: %w", g, f, ErrNoPipeline)
	}
	out, players, err := s.load(ctx, g, f)
	if err != nil {
		return res, fmt.Errorf("get %s/%s: %w", g, f, err)
	}
	res.Error = out.Error
	if !out.Success {
		return res, fmt.Errorf("get %s/%s: %w", g, f, pipeline.ErrAllSourcesExhausted)
	}
	res.Players, res.Source = players, out.Source
	if res.Players == nil {
		res.Players = []model.Player{}
	}
	return res, nil
}

type loaded struct {
	out     pipeline.Outcome
	players []model.Player
}

// load resolves a pair through the pipeline. Concurrent callers for the same
// pair share one resolution, which runs detached from any single caller under
// the refresh timeout. A caller whose context ends stops waiting without
// affecting the others.
func (s *Service) load(ctx context.Context, g model.Group, f model.Format) (pipeline.Outcome, []model.Player, error) {
	key := cache.Key{Group: g, Format: f}.String()
	ch := s.loads.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()
		out, players := s.pipeline.Resolve(shared, g, f, false)
		return loaded{out: out, players: players}, nil
	})

	select {
	case <-ctx.Done():
		return pipeline.Outcome{Group: g, Format: f}, nil, ctx.Err()
	case r := <-ch:
		l := r.Val.(loaded)
		return l.out, model.ClonePlayers(l.players), nil
	}
}

// refreshAsync queues a background refetch of one pair and reports whether a
// refresh is now queued or running. It reports false before Start and when
// the queue cannot take the job, leaving the caller to resolve synchronously.
func (s *Service) refreshAsync(g model.Group, f model.Format) bool {
	s.mu.RLock()
	jobs, base := s.jobs, s.baseCtx
	started := s.started
	s.mu.RUnlock()
	if !started || jobs == nil {
		return false
	}

	job := queue.Job{Group: g, Format: f}
	switch err := jobs.Enqueue(base, job); {
	case err == nil:
		metrics.RecordBackgroundRefresh()
		return true
	case errors.Is(err, queue.ErrPending):
		// already queued or running
		return true
	default:
		s.logger.Warn(base, "background refresh not queued", logger.String("key", job.Key()), logger.Error(err))
		return false
	}
}

// refreshPair is the refresh worker handler.
func (s *Service) refreshPair(ctx context.Context, j queue.Job) error {
	out, _ := s.pipeline.Resolve(ctx, j.Group, j.Format, true)
	s.logger.Debug(ctx, "background refresh finished",
		logger.String("key", j.Key()),
		logger.String("source", string(out.Source)),
		logger.Bool("success", out.Success))
	if out.Source != model.SourceAPI {
		return fmt.Errorf("refresh %s: served from %q: %s", j.Key(), out.Source, out.Error)
	}
	return nil
}

// NeedsBackgroundRefresh reports, per group, whether any tracked format is
// stale, expired or missing.
func (s *Service) NeedsBackgroundRefresh(ctx context.Context) map[model.Group]bool {
	out := make(map[model.Group]bool, len(model.AllGroups))
	for _, g := range model.AllGroups {
		out[g] = false
		for _, f := range s.formats {
			if s.cache.NeedsRefresh(ctx, g, f) {
				out[g] = true
				break
			}
		}
	}
	return out
}

// Status lists the cache state of every tracked pair.
func (s *Service) Status(ctx context.Context) []PairStatus {
	out := make([]PairStatus, 0, len(model.AllGroups)*len(s.formats))
	for _, g := range model.AllGroups {
		for _, f := range s.formats {
			st := s.cache.Status(ctx, g, f)
			out = append(out, PairStatus{Group: g, Format: f, Status: st, NeedsRefresh: st.NeedsRefresh()})
		}
	}
	return out
}

// RefreshStale runs the pipeline for every tracked pair that needs a
// refresh, one run per format. It returns the reports of the runs made.
func (s *Service) RefreshStale(ctx context.Context) []*pipeline.Report {
	if s.pipeline == nil {
		return nil
	}
	var reports []*pipeline.Report
	for _, f := range s.formats {
		var groups []model.Group
		for _, g := range model.AllGroups {
			if s.cache.NeedsRefresh(ctx, g, f) {
				groups = append(groups, g)
			}
		}
		if len(groups) == 0 {
			continue
		}
		rep, err := s.pipeline.Run(ctx, pipeline.Request{
			Groups:       groups,
			Formats:      []model.Format{f},
			ForceRefresh: true,
			UpdateCache:  true,
		})
		if err != nil {
			s.logger.Warn(ctx, "scheduled refresh failed", logger.String("format", string(f)), logger.Error(err))
			continue
		}
		reports = append(reports, rep)
	}
	return reports
}

func (s *Service) refreshLoop(base context.Context, stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(base, s.refreshTimeout)
			reports := s.RefreshStale(ctx)
			cancel()
			if len(reports) > 0 {
				s.logger.Info(ctx, "scheduled refresh completed", logger.Int("runs", len(reports)))
			}
		}
	}
}

// Tiers returns the dataset for a pair clustered into at most k tiers.
func (s *Service) Tiers(ctx context.Context, g model.Group, f model.Format, k int) (TierResult, error) {
	res, err := s.Get(ctx, g, f)
	if err != nil {
		return TierResult{Result: res}, err
	}
	if k < 1 {
		k = s.clusterer.DefaultTiers()
	}
	return TierResult{Result: res, K: k, Tiers: s.clusterer.Build(res.Players, f, k)}, nil
}

// Compare shows what the cache, the dataset store and the samples hold for
// a pair without fetching.
func (s *Service) Compare(ctx context.Context, g model.Group, f model.Format) (Comparison, error) {
	cmp := Comparison{Group: g, Format: f, Sources: make(map[string]SourceView, 3)}
	if !g.Valid() || !f.Valid() {
		return cmp, fmt.Errorf("compare %s/%s: %w", g, f, ErrInvalidInput)
	}

	cv := SourceView{}
	if e, status := s.cache.Lookup(ctx, g, f); e != nil {
		ts := e.Timestamp
		cv = SourceView{Available: true, Count: len(e.Data), Status: status, Source: e.Source, UpdatedAt: &ts, Players: e.Data}
	} else {
		cv.Status = status
	}
	cmp.Sources["cache"] = cv

	sv := SourceView{}
	switch d, err := s.store.Load(ctx, g, f); {
	case err == nil:
		ts := d.UpdatedAt
		sv = SourceView{Available: true, Count: len(d.Players), Source: d.Source, UpdatedAt: &ts, Players: d.Players}
	case errors.Is(err, repository.ErrNotFound):
	default:
		sv.Error = err.Error()
	}
	cmp.Sources["store"] = sv

	smp := SourceView{}
	if s.samples != nil {
		if players, ok := s.samples.For(g); ok {
			smp = SourceView{Available: true, Count: len(players), Source: model.SourceSample, Players: players}
		}
	}
	cmp.Sources["sample"] = smp
	return cmp, nil
}

// Ingest applies a client supplied dataset to the store and mirrors the
// result into the cache. A repeated idempotency key is acknowledged without
// being applied again.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if req.Action == "" {
		req.Action = ActionSet
	}
	res := IngestResult{Group: req.Group, Format: req.Format, Action: req.Action}
	if !req.Group.Valid() || !req.Format.Valid() {
		return res, fmt.Errorf("ingest %s/%s: %w", req.Group, req.Format, ErrInvalidInput)
	}
	switch req.Action {
	case ActionSet, ActionAppend, ActionClear:
	default:
		return res, fmt.Errorf("ingest %q: %w", req.Action, ErrUnknownAction)
	}

	players, err := withIDs(req.Players)
	if err != nil {
		return res, fmt.Errorf("ingest %s/%s: %w", req.Group, req.Format, err)
	}
	req.Players = players

	if req.IdempotencyKey != "" && s.deduper.SeenAndRecord(ctx, req.IdempotencyKey) {
		metrics.RecordIngestDuplicate()
		s.logger.Debug(ctx, "duplicate ingest skipped", logger.String("idempotencyKey", req.IdempotencyKey))
		res.Duplicate = true
		return res, nil
	}

	count, err := s.apply(ctx, req)
	if err != nil {
		if req.IdempotencyKey != "" {
			s.deduper.Unrecord(ctx, req.IdempotencyKey)
		}
		return res, err
	}
	res.Count = count
	metrics.RecordIngest(string(req.Action))
	s.logger.Info(ctx, "dataset ingested",
		logger.String("group", string(req.Group)),
		logger.String("format", string(req.Format)),
		logger.String("action", string(req.Action)),
		logger.Int("count", count))
	return res, nil
}

// withIDs returns a copy of players where a missing id falls back to the
// name. Append merges by id, so a player with neither is rejected.
func withIDs(players []model.Player) ([]model.Player, error) {
	out := model.ClonePlayers(players)
	for i := range out {
		out[i].ID = strings.TrimSpace(out[i].ID)
		if out[i].ID != "" {
			continue
		}
		name := strings.TrimSpace(out[i].Name)
		if name == "" {
			return nil, fmt.Errorf("entity %d has neither id nor name: %w", i, ErrInvalidInput)
		}
		out[i].ID = name
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, req IngestRequest) (int, error) {
	g, f := req.Group, req.Format
	switch req.Action {
	case ActionClear:
		if err := s.store.Clear(ctx, g, f); err != nil {
			return 0, fmt.Errorf("clear dataset: %w", err)
		}
		if err := s.cache.Remove(ctx, g, f); err != nil {
			s.logger.Warn(ctx, "cache remove failed", logger.Error(err))
		}
		return 0, nil

	case ActionAppend:
		d, err := s.store.Append(ctx, g, f, req.Players, model.SourceIngest)
		if err != nil {
			return 0, fmt.Errorf("append dataset: %w", err)
		}
		s.mirror(ctx, g, f, d.Players)
		return len(d.Players), nil

	default:
		players := model.ClonePlayers(req.Players)
		if players == nil {
			players = []model.Player{}
		}
		err := s.store.Save(ctx, repository.Dataset{Group: g, Format: f, Players: players, Source: model.SourceIngest})
		if err != nil {
			return 0, fmt.Errorf("save dataset: %w", err)
		}
		s.mirror(ctx, g, f, players)
		return len(players), nil
	}
}

func (s *Service) mirror(ctx context.Context, g model.Group, f model.Format, players []model.Player) {
	if err := s.cache.SetWithEviction(ctx, g, f, players, model.SourceIngest); err != nil {
		s.logger.Warn(ctx, "cache mirror failed",
			logger.String("group", string(g)),
			logger.String("format", string(f)),
			logger.Error(err))
	}
}

// RunPipeline runs the fetch pipeline.
func (s *Service) RunPipeline(ctx context.Context, req pipeline.Request) (*pipeline.Report, error) {
	if s.pipeline == nil {
		return nil, ErrNoPipeline
	}
	return s.pipeline.Run(ctx, req)
}

// Purge removes old cache records and datasets.
func (s *Service) Purge(ctx context.Context, days int, clearCache bool) (pipeline.PurgeResult, error) {
	if s.pipeline == nil {
		return pipeline.PurgeResult{}, ErrNoPipeline
	}
	return s.pipeline.Purge(ctx, days, clearCache)
}

// Ping checks the dataset store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started, jobs := s.started, s.jobs
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         started,
		"refreshInterval": s.refreshInterval.String(),
		"trackedFormats":  s.formats,
		"cache":           s.cache.Stats(),
		"idempotencyKeys": s.deduper.Size(),
	}
	if started && jobs != nil {
		stats["refreshesPending"] = jobs.Pending()
	}
	if keys, err := s.cache.Keys(context.Background()); err == nil {
		stats["cachedPairs"] = len(keys)
	}
	return stats
}
