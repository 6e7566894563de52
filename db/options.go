package db

import "time"

// Option configures a store
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock stamps record creation and update times from now
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
