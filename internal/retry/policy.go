package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultBackoffInitial = 200 * time.Millisecond
	defaultBackoffMax     = 3 * time.Second
)

// Policy retries transient failures with capped exponential backoff.
type Policy struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, decision Decision, err error)

	sleepFn func(ctx context.Context, d time.Duration) error
}

// WithSleep returns a copy of p that sleeps through fn. Tests use it to avoid
// real delays.
func (p Policy) WithSleep(fn func(ctx context.Context, d time.Duration) error) Policy {
	p.sleepFn = fn
	return p
}

// Do runs fn until it succeeds, fails terminally, or attempts are exhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.effectiveMaxAttempts()

	var lastErr error
	lastDecision := Decision{Class: ClassTerminal, Reason: "unset"}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		lastDecision = Classify(err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !lastDecision.IsTransient() {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastDecision, err)
		}
		if sleepErr := p.sleep(ctx, p.Delay(attempt)); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("transient_recovery_exhausted attempts=%d reason=%s: %w", attempts, lastDecision.Reason, lastErr)
}

// Delay returns the backoff before retrying after the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.effectiveBackoffInitial()
	max := p.effectiveBackoffMax()
	if max < base {
		max = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if p.sleepFn != nil {
		return p.sleepFn(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p Policy) effectiveMaxAttempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) effectiveBackoffInitial() time.Duration {
	if p.BackoffInitial <= 0 {
		return defaultBackoffInitial
	}
	return p.BackoffInitial
}

func (p Policy) effectiveBackoffMax() time.Duration {
	if p.BackoffMax <= 0 {
		return defaultBackoffMax
	}
	return p.BackoffMax
}
