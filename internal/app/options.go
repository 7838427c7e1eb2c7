package service

import (
	"time"

	"github.com/okian/draftboard/internal/adapters/repository"
	"github.com/okian/draftboard/internal/adapters/sample"
	"github.com/okian/draftboard/internal/domain/dedupe"
	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/internal/domain/tiers"
	"github.com/okian/draftboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDatasetStore sets the durable store used for ingest, compare and warm-up.
func WithDatasetStore(s repository.DatasetStore) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithSampleProvider sets the sample source shown by Compare.
func WithSampleProvider(p sample.Provider) Option {
	return func(s *Service) {
		s.samples = p
	}
}

// WithClusterer sets the tier clusterer.
func WithClusterer(c *tiers.Clusterer) Option {
	return func(s *Service) {
		if c != nil {
			s.clusterer = c
		}
	}
}

// WithDeduper sets the idempotency key tracker used by Ingest.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithRefreshInterval sets how often stale pairs are refreshed in the
// background. Zero disables the loop.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.refreshInterval = d
		}
	}
}

// WithRefreshTimeout bounds a single background refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithRefreshWorkers sets how many background refreshes run at once.
func WithRefreshWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.refreshWorkers = n
		}
	}
}

// WithTrackedFormats restricts the formats watched by the refresh loop.
func WithTrackedFormats(formats ...model.Format) Option {
	return func(s *Service) {
		var fs []model.Format
		for _, f := range formats {
			if f.Valid() {
				fs = append(fs, f)
			}
		}
		if len(fs) > 0 {
			s.formats = fs
		}
	}
}

// WithWarmUp toggles restoring persisted datasets into the cache on Start.
func WithWarmUp(enabled bool) Option {
	return func(s *Service) {
		s.warmUp = enabled
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
