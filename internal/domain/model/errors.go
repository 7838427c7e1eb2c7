package model

import "errors"

// Sentinel kinds for model validation.
var (
	ErrInvalid = errors.New("invalid value")
)
