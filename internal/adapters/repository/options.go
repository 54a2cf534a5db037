package repository

import "time"

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	now         func() time.Time
	busyTimeout time.Duration
	maxOpen     int
}

func defaultOptions() options {
	return options{
		now:         time.Now,
		busyTimeout: 30 * time.Second,
		maxOpen:     1,
	}
}

// WithClock sets the time source used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// WithMaxOpenConns bounds the SQLite connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpen = n
		}
	}
}
