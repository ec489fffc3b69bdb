// Package util holds small concurrency helpers shared by the clients.
package util

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrRetriesExhausted is joined with the last error once every retry failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Backoff configures exponential retry. The zero value makes one attempt.
type Backoff struct {
	// Retries is the number of attempts after the first
	Retries    int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter spreads each delay by up to this fraction (0.0 - 1.0)
	Jitter float64
}

// DefaultBackoff retries twice, starting at 200ms.
func DefaultBackoff() Backoff {
	return Backoff{
		Retries:    2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Retry calls fn until it succeeds, retryIf rejects its error, the retries
// run out or ctx ends. A nil retryIf retries every error. It returns the
// number of attempts made.
func Retry(ctx context.Context, b Backoff, retryIf func(error) bool, fn func() error) (int, error) {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if retryIf != nil && !retryIf(err) {
			return attempt, err
		}
		if attempt > b.Retries {
			if b.Retries == 0 {
				return attempt, err
			}
			return attempt, errors.Join(ErrRetriesExhausted, err)
		}

		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// delay is BaseDelay * Multiplier^(attempt-1), jittered and clamped to MaxDelay.
func (b Backoff) delay(attempt int) time.Duration {
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	d := float64(b.BaseDelay) * math.Pow(multiplier, float64(attempt-1))

	if b.Jitter > 0 {
		spread := d * b.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	if b.MaxDelay > 0 && time.Duration(d) > b.MaxDelay {
		d = float64(b.MaxDelay)
	}
	return time.Duration(d)
}
