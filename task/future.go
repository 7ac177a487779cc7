// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package task

import (
	"context"

	"github.com/z5labs/tether/internal/try"
)

// Future is the eventual result of an asynchronous computation.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Spawn submits f to rt and returns a Future for its result. The error
// returned by f is delivered through the Future only. If the submission
// itself fails the returned Future is already resolved with that error.
func Spawn[T any](ctx context.Context, rt *Runtime, f func(context.Context) (T, error)) *Future[T] {
	fut := &Future[T]{done: make(chan struct{})}

	err := rt.Submit(ctx, func(ctx context.Context) error {
		defer close(fut.done)

		fut.value, fut.err = call(ctx, f)
		return nil
	})
	if err != nil {
		fut.err = err
		close(fut.done)
	}
	return fut
}

func call[T any](ctx context.Context, f func(context.Context) (T, error)) (v T, err error) {
	defer try.Recover(&err)
	return f(ctx)
}

// Await blocks until the Future resolves or ctx is cancelled.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-f.done:
		return f.value, f.err
	}
}

// Done returns a channel which is closed once the Future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
