package service

import "errors"

// Service errors.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotStarted    = errors.New("service not started")
	ErrNoPipeline    = errors.New("no pipeline configured")
	ErrUnknownAction = errors.New("unknown ingest action")
)
