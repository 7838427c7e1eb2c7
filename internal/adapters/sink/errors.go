package sink

import "errors"

// Sentinel errors for report sinks.
var (
	ErrNoBrokers = errors.New("sink: at least one kafka broker required")
	ErrNoTopic   = errors.New("sink: kafka topic required")
	ErrNoBucket  = errors.New("sink: s3 bucket required")
)
