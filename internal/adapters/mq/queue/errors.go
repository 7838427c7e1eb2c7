package queue

import "errors"

// Sentinel errors returned by Enqueue.
var (
	ErrFull    = errors.New("refresh queue full")
	ErrClosed  = errors.New("refresh queue closed")
	ErrPending = errors.New("refresh already pending")
)
