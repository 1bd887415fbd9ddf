// Package retry implements a bounded fixed-interval poll loop.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned when fn never reported done within the cap.
var ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

// Poll calls fn up to maxAttempts times, sleeping interval between attempts.
// fn returns done=true to stop polling successfully, or an error to abort
// immediately. Poll never waits past the attempt cap, so the worst-case
// duration is maxAttempts*interval.
func Poll(ctx context.Context, maxAttempts int, interval time.Duration, fn func(ctx context.Context) (done bool, err error)) error {
	if maxAttempts <= 0 {
		return ErrAttemptsExhausted
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return ErrAttemptsExhausted
}
