package sink

import (
	"time"

	"github.com/okian/draftboard/pkg/logger"
)

const (
	defaultMaxAttempts  = 3
	defaultWriteTimeout = 10 * time.Second
	defaultBackoff      = 100 * time.Millisecond
	maxBackoff          = 2 * time.Second
)

type options struct {
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
	prefix       string
	writer       messageWriter
	uploader     uploader
	log          logger.Logger
}

func defaultOptions() options {
	return options{
		maxAttempts:  defaultMaxAttempts,
		writeTimeout: defaultWriteTimeout,
		backoff:      defaultBackoff,
		log:          logger.Named("sink"),
	}
}

// Option applies a configuration option to a sink.
type Option func(*options)

// WithMaxAttempts sets how many times a Kafka write is tried.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithWriteTimeout sets the per-attempt Kafka write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithBackoff sets the initial retry backoff. It doubles up to two seconds.
func WithBackoff(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.backoff = d
		}
	}
}

// WithPrefix sets the S3 key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithLogger sets the sink logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
