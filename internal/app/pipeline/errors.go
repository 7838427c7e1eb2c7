package pipeline

import "errors"

// Sentinel kinds for pipeline errors.
var (
	// ErrAllSourcesExhausted means the fetch failed, the cache had nothing and
	// no sample exists for the group. It is the only per-item failure.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
	ErrInvalidRequest      = errors.New("invalid pipeline request")
)
