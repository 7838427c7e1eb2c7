package pipeline

import (
	"time"

	"github.com/okian/draftboard/internal/adapters/repository"
	"github.com/okian/draftboard/internal/adapters/sample"
	"github.com/okian/draftboard/pkg/logger"
)

// Defaults for the orchestrator.
const (
	DefaultWorkers         = 4
	DefaultPolitenessDelay = 50 * time.Millisecond
	DefaultSinkTimeout     = 10 * time.Second
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds how many pairs are processed concurrently.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPolitenessDelay sets the minimum gap between upstream calls. Zero
// disables pacing.
func WithPolitenessDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithDatasetStore persists every successful fetch.
func WithDatasetStore(s repository.DatasetStore) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithSampleProvider sets the last-resort dataset source.
func WithSampleProvider(p sample.Provider) Option {
	return func(o *Orchestrator) {
		o.samples = p
	}
}

// WithReportSink adds a destination for finished reports.
func WithReportSink(s ReportSink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithSinkTimeout bounds report delivery.
func WithSinkTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.sinkTimeout = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}
