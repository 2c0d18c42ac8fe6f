// Package reconcile converges remote board state toward the state the
// rule engine requested: it decides whether each requested action is
// already satisfied, issues at most one mutation when it is not, and
// absorbs GitHub's eventual consistency with bounded retries.
package reconcile

import (
	"context"
	"fmt"
	"time"
)

// Policy is an explicit retry policy: attempt count plus a backoff
// function giving the delay before attempt n (n >= 2). One policy object
// is applied uniformly by Do; call sites never hand-roll attempt
// counters.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultPolicy returns the retry policy tuned for GitHub's
// eventual-consistency lag: 3 attempts, exponential backoff starting at
// 1s and capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			d := time.Second << (attempt - 2)
			if d > 5*time.Second {
				d = 5 * time.Second
			}
			return d
		},
	}
}

// SleepFunc suspends for d or until the context is done. Tests substitute
// a no-op to keep backoff out of the test clock.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExhaustedError reports that an operation failed on every attempt. It
// carries the last error and the last observed state snapshot for the
// run summary; it is a typed failure, not a crash.
type ExhaustedError struct {
	Op        string
	Attempts  int
	LastErr   error
	LastState *StateSnapshot
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.LastErr)
}

// Unwrap exposes the last attempt's error to errors.Is/As.
func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Do runs op under the policy. op returns the state snapshot it observed
// so that exhaustion can report what the remote actually looked like.
// The delay before attempt n is policy.Backoff(n); attempt 1 runs
// immediately.
func Do(ctx context.Context, p Policy, sleep SleepFunc, opName string, op func(attempt int) (*StateSnapshot, error)) (*StateSnapshot, error) {
	var lastErr error
	var lastState *StateSnapshot

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Backoff(attempt)); err != nil {
				return lastState, err
			}
		}

		state, err := op(attempt)
		if err == nil {
			return state, nil
		}
		lastErr = err
		if state != nil {
			lastState = state
		}
	}

	return lastState, &ExhaustedError{
		Op:        opName,
		Attempts:  p.MaxAttempts,
		LastErr:   lastErr,
		LastState: lastState,
	}
}
