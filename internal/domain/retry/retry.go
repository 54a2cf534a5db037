// Package retry wraps a single provider call with bounded attempts and a
// linearly increasing backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pitwall/pkg/logger"
)

// Defaults mirror the upstream provider's tolerance.
const (
	DefaultMaxAttempts = 5
	DefaultBackoffStep = 30 * time.Second
)

// Kind classifies a Result.
type Kind int

// Result kinds.
const (
	KindOK        Kind = iota // the call succeeded
	KindExhausted             // every attempt failed with a retryable error
	KindFatal                 // a permanent error or cancellation stopped retrying
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindExhausted:
		return "exhausted"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result carries either the value of a successful call or the terminal error.
type Result[T any] struct {
	Value    T
	Attempts int
	Kind     Kind
	Err      error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Kind == KindOK }

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper sleeps on the wall clock.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// Policy is the retry policy. The zero value is not usable; use New.
type Policy struct {
	maxAttempts int
	backoffStep time.Duration
	callDelay   time.Duration
	sleeper     Sleeper
	logger      logger.Logger
}

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt bound.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoffStep sets the unit of the linear backoff.
func WithBackoffStep(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.backoffStep = d
		}
	}
}

// WithCallDelay sets the fixed delay applied before every attempt.
func WithCallDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.callDelay = d
		}
	}
}

// WithSleeper replaces the wall-clock sleeper.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) {
		if s != nil {
			p.sleeper = s
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l logger.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Policy with defaults applied.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: DefaultMaxAttempts,
		backoffStep: DefaultBackoffStep,
		sleeper:     TimerSleeper{},
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the attempt bound.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }

// Backoff returns the wait after failed attempt i (0-indexed).
func (p *Policy) Backoff(i int) time.Duration {
	return p.backoffStep * time.Duration(i+1)
}

// Do runs op under policy p. fields are attached to every log line.
func Do[T any](ctx context.Context, p *Policy, op func(context.Context) (T, error), fields ...logger.Field) Result[T] {
	var (
		res     Result[T]
		lastErr error
	)
	for i := 0; i < p.maxAttempts; i++ {
		if p.callDelay > 0 {
			if err := p.sleeper.Sleep(ctx, p.callDelay); err != nil {
				return fatal(res, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return fatal(res, err)
		}

		res.Attempts = i + 1
		v, err := op(ctx)
		if err == nil {
			res.Value = v
			res.Kind = KindOK
			return res
		}
		lastErr = err
		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fatal(res, err)
		}
		if i == p.maxAttempts-1 {
			break
		}

		wait := p.Backoff(i)
		logFields := make([]logger.Field, 0, len(fields)+3)
		logFields = append(logFields, fields...)
		logFields = append(logFields,
			logger.Int("attempt", i+1),
			logger.Duration("wait", wait),
			logger.Error(err),
		)
		p.logger.Warn(ctx, "attempt failed, backing off", logFields...)
		if err := p.sleeper.Sleep(ctx, wait); err != nil {
			return fatal(res, err)
		}
	}
	res.Kind = KindExhausted
	res.Err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, res.Attempts, lastErr)
	return res
}

func fatal[T any](res Result[T], err error) Result[T] {
	res.Kind = KindFatal
	res.Err = err
	return res
}
