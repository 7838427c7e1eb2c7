package worker

import (
	"time"

	"github.com/okian/draftboard/pkg/logger"
)

// Option configures workers and pools.
type Option func(*options)

type options struct {
	name       string
	jobTimeout time.Duration
	logger     logger.Logger
}

func defaultOptions() options {
	return options{
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		logger:     logger.Named("worker"),
	}
}

// WithName sets the worker name for identification and logging. In a pool
// it is the prefix of each worker's name.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithJobTimeout bounds each job.
func WithJobTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
