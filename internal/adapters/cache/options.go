package cache

import (
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/okian/draftboard/pkg/logger"
)

// Default windows and layout.
const (
	DefaultFreshFor   = 30 * time.Minute
	DefaultStaleFor   = 2 * time.Hour
	DefaultMaxAge     = 24 * time.Hour
	DefaultKeyPrefix  = "fp_cache_"
	DefaultEvictBatch = 2
)

// Option configures a Store.
type Option func(*Store)

// WithFilesystem sets the storage medium. Defaults to an in-memory filesystem.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(s *Store) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithWindows sets the fresh, stale and max-age windows. Invalid
// combinations (non-positive or not increasing) are ignored.
func WithWindows(fresh, stale, maxAge time.Duration) Option {
	return func(s *Store) {
		if fresh > 0 && stale >= fresh && maxAge >= stale {
			s.freshFor = fresh
			s.staleFor = stale
			s.maxAge = maxAge
		}
	}
}

// WithKeyPrefix sets the file name prefix for records.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxBytes caps the total size of stored records. Zero means unlimited.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxBytes = n
		}
	}
}

// WithEvictBatch sets how many records SetWithEviction evicts before retrying.
func WithEvictBatch(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.evictBatch = n
		}
	}
}

// WithVersion overrides the schema version stamped on and expected from records.
func WithVersion(v int) Option {
	return func(s *Store) {
		s.version = v
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}
