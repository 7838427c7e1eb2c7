package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	// ErrSchemaMismatch marks a record written by an incompatible version or
	// one that cannot be decoded. It never leaves the package; such records
	// read as missing.
	ErrSchemaMismatch = errors.New("cache schema mismatch")
	// ErrStorageFull is returned when the medium has no room for a record.
	ErrStorageFull = errors.New("cache storage full")
	// ErrStorageUnavailable is returned when the medium cannot be read or written.
	ErrStorageUnavailable = errors.New("cache storage unavailable")
)
