// Package retry runs startup operations with capped exponential backoff.
// PostgreSQL and Redis are dialed through it so that an instance started
// alongside its dependencies waits for them instead of crash looping.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, back off and try again
)

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration // zero means uncapped

	// Jitter spreads each wait by up to this fraction of itself, so replicas
	// restarted together do not dial in lockstep. Zero disables it.
	Jitter float64

	Clock   clockwork.Clock
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Startup is the policy for dependencies the server cannot start without.
var Startup = Policy{
	MaxAttempts:    8,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	Jitter:         0.2,
}

type Classify func(err error) Action

// Always treats every error as transient.
func Always(error) Action { return Retry }

// PermanentError marks a failure the classifier refused to retry.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Do[T any](ctx context.Context, p Policy, classify Classify, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, fmt.Errorf("retry policy needs at least one attempt, got %d", p.MaxAttempts)
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		if classify(err) == Stop {
			return zero, &PermanentError{Err: err}
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		select {
		case <-clock.After(wait):
		case <-ctx.Done():
			return zero, fmt.Errorf("gave up waiting after attempt %d: %w", attempt, ctx.Err())
		}
	}
	return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, classify, func(ctx context.Context) (struct{}, error) { return struct{}{}, op(ctx) })
	return err
}

// wait is the pause after the given failed attempt, counting from 1.
func (p Policy) wait(attempt int) time.Duration {
	d := p.InitialBackoff
	for range attempt - 1 {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	if p.Jitter > 0 && d > 0 {
		spread := time.Duration(float64(d) * p.Jitter)
		d += time.Duration(rand.Int64N(int64(2*spread)+1)) - spread
	}
	return d
}
