package retry

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

// Policy describes how many times an operation runs and how long to wait between runs.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the wait before the attempt following the given one: base * 2^(attempt-1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// Do runs op until it succeeds or the attempt budget is spent and returns the last error.
// op receives the 1-based attempt number. Every failed attempt, the last one included, is
// followed by Delay(attempt), so an exhausted budget of n attempts waits base*(2^n-1) in total.
func Do(ctx context.Context, p Policy, op func(attempt int) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
