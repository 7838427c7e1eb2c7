package repository

import "time"

type options struct {
	now   func() time.Time
	table string
}

func defaultOptions() options {
	return options{now: time.Now, table: "datasets"}
}

// Option configures a DatasetStore implementation.
type Option func(*options)

// WithClock injects the time source used for UpdatedAt and purges.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTable sets the Postgres table name.
func WithTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.table = name
		}
	}
}
