// Package runner bounds a single operation by a deadline.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when an operation does not finish within its deadline
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Timeout)
}

// OperationError wraps a failure returned by the operation itself
type OperationError struct {
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

type outcome[T any] struct {
	value T
	err   error
}

// Run executes op with a context that is cancelled after timeout. The caller gets a
// result no later than the deadline: if op has not returned by then, Run returns a
// *TimeoutError and whatever op produces afterwards is discarded.
//
// Cancelling the parent context cancels op's context too, and Run then waits for op to
// return, still bounded by the deadline. A value op manages to return is kept; anything
// else is reported as the context error, never as a timeout. A non-positive timeout
// disables the deadline.
func Run[T any](ctx context.Context, operation string, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	// buffered so a late finisher never blocks
	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := op(opCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return zero, &OperationError{Operation: operation, Err: res.err}
		}
		return res.value, nil
	case <-deadline:
		return zero, &TimeoutError{Operation: operation, Timeout: timeout}
	case <-ctx.Done():
	}

	select {
	case res := <-done:
		if res.err == nil {
			return res.value, nil
		}
	case <-deadline:
	}
	return zero, ctx.Err()
}
