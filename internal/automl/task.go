package automl

import (
	"context"
	"sync/atomic"
)

// Task runs a long operation on a background goroutine and hands its result
// across once, so a foreground loop can keep polling progress boards without
// touching the worker's live state.
type Task[T any] struct {
	done   chan struct{}
	result atomic.Pointer[taskOutcome[T]]
}

type taskOutcome[T any] struct {
	value T
	err   error
}

// Go starts fn immediately and returns its task handle.
func Go[T any](fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		value, err := fn()
		t.result.Store(&taskOutcome[T]{value: value, err: err})
	}()
	return t
}

// Done is closed when the task finishes.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Finished reports completion without blocking.
func (t *Task[T]) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task finishes or ctx is cancelled. Cancellation
// abandons the wait, not the task itself; the worker keeps running until its
// own context stops it.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		out := t.result.Load()
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
