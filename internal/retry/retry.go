// Package retry wraps upstream calls in a bounded retry loop. Delays grow
// linearly (base x attempt) by default, matching the pacing the 42.space API
// tolerates, or exponentially when configured.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Kind selects the delay progression between attempts.
type Kind string

const (
	Linear      Kind = "linear"
	Exponential Kind = "exponential"
)

// Policy parameterises Do.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Kind        Kind
}

// DefaultPolicy is four attempts spaced 2s, 4s, 6s apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Kind:        Linear,
	}
}

// Permanent marks err as not worth retrying; Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the context is
// cancelled, or MaxAttempts is reached. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if logger != nil {
		attempt := 0
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			attempt++
			logger.Warn("request failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.Duration("delay", next),
				slog.String("error", err.Error()),
			)
		}))
	}

	return backoff.Retry(ctx, func() (T, error) {
		return op(ctx)
	}, opts...)
}

func (p Policy) backOff() backoff.BackOff {
	if p.Kind == Exponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.BaseDelay
		b.RandomizationFactor = 0
		if p.MaxDelay > 0 {
			b.MaxInterval = p.MaxDelay
		}
		return b
	}
	return &LinearBackOff{Base: p.BaseDelay, Max: p.MaxDelay}
}

// LinearBackOff waits Base x n before the n-th retry, capped at Max when Max
// is positive.
type LinearBackOff struct {
	Base time.Duration
	Max  time.Duration

	n int
}

var _ backoff.BackOff = (*LinearBackOff)(nil)

// NextBackOff implements backoff.BackOff.
func (b *LinearBackOff) NextBackOff() time.Duration {
	b.n++
	d := b.Base * time.Duration(b.n)
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Reset implements backoff.BackOff.
func (b *LinearBackOff) Reset() {
	b.n = 0
}
