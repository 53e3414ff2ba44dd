// Package retry implements the bounded exponential backoff used for all
// generation provider calls.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"storyforge/internal/services"
)

// Sleeper allows tests to intercept backoff waits.
type Sleeper func(ctx context.Context, d time.Duration) error

// Jitter returns a multiplier applied to each computed wait. The default
// implementation draws uniformly from [0.5, 1.5).
type Jitter func() float64

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
	Factor      float64

	// Sleep and JitterFn are test hooks. Zero values select real
	// context-aware sleeping and uniform jitter.
	Sleep    Sleeper
	JitterFn Jitter
}

// Default returns the policy used when no configuration is supplied.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		MinWait:     500 * time.Millisecond,
		MaxWait:     30 * time.Second,
		Factor:      2,
	}
}

// delayHint is implemented by errors carrying a server-provided wait,
// such as services.RateLimited.
type delayHint interface {
	RetryAfter() time.Duration
}

// Execute runs op until it succeeds, a non-retryable error occurs, the
// attempt budget is exhausted, or ctx is done. The error from the final
// attempt is returned unwrapped so callers can classify it.
func (p Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := p.wait(attempt)
		var hint delayHint
		if errors.As(lastErr, &hint) {
			if after := hint.RetryAfter(); after > wait {
				wait = after
			}
		}
		if err := sleep(ctx, wait); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// Retryable reports whether err is worth another attempt. Only transient
// failures qualify. Cancellation, pauses, validation problems, and fatal
// provider rejections all propagate immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return services.Classify(err) == services.KindTransient
}

// wait computes the jittered backoff before attempt+1. The exponential
// component is capped at MaxWait before jitter is applied.
func (p Policy) wait(attempt int) time.Duration {
	minWait := p.MinWait
	if minWait <= 0 {
		minWait = 500 * time.Millisecond
	}
	maxWait := p.MaxWait
	if maxWait < minWait {
		maxWait = minWait
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2
	}

	base := float64(minWait)
	for i := 1; i < attempt; i++ {
		base *= factor
		if base >= float64(maxWait) {
			base = float64(maxWait)
			break
		}
	}

	jitter := p.JitterFn
	if jitter == nil {
		jitter = uniformJitter
	}
	jittered := base * jitter()
	if jittered > float64(maxWait) {
		jittered = float64(maxWait)
	}
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

func uniformJitter() float64 {
	return 0.5 + rand.Float64()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
