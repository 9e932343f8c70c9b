// Package stream provides restartable, cancellable push sequences.
//
// A Stream is a recipe, not a running computation: every Run, Subscribe or
// Each starts an independent run of the source, so re-subscribing restarts
// it from scratch. A run ends when its context is cancelled, when the source
// completes, or when the consumer's yield returns an error.
package stream

import (
	"context"
	"errors"
)

// ErrEmpty is returned by First when the stream completed without a value.
var ErrEmpty = errors.New("stream completed without a value")

// errStop ends a run early from inside yield.
var errStop = errors.New("stream: stop")

// Stream is a restartable push sequence of T.
//
// Sources call yield for each value. yield blocks until the value was
// handed over and returns a non-nil error when the source must stop; the
// source then returns that error. Sources must return ctx.Err() once ctx is
// done.
type Stream[T any] struct {
	run func(ctx context.Context, yield func(T) error) error
}

// New creates a stream from a source function.
func New[T any](run func(ctx context.Context, yield func(T) error) error) Stream[T] {
	return Stream[T]{run: run}
}

// Of returns a stream that yields values in order and completes.
func Of[T any](values ...T) Stream[T] {
	return New(func(ctx context.Context, yield func(T) error) error {
		for _, v := range values {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := yield(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Fail returns a stream that fails immediately with err.
func Fail[T any](err error) Stream[T] {
	return New(func(context.Context, func(T) error) error {
		return err
	})
}

// Run drives one run of the stream in the calling goroutine.
func (s Stream[T]) Run(ctx context.Context, yield func(T) error) error {
	if s.run == nil {
		return nil
	}
	return s.run(ctx, yield)
}

// First runs the stream until its first value and returns it.
func First[T any](ctx context.Context, s Stream[T]) (T, error) {
	var (
		out T
		got bool
	)
	err := s.Run(ctx, func(v T) error {
		out, got = v, true
		return errStop
	})
	if got {
		return out, nil
	}
	if err == nil {
		err = ErrEmpty
	}
	var zero T
	return zero, err
}

// Map transforms every value of s with fn.
func Map[T, U any](s Stream[T], fn func(T) U) Stream[U] {
	return New(func(ctx context.Context, yield func(U) error) error {
		return s.Run(ctx, func(v T) error {
			return yield(fn(v))
		})
	})
}

// Handle controls a running stream started with Each or Subscribe.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{cancel: cancel, done: make(chan struct{})}
}

// Cancel stops the run and waits for it to exit. Values not yet delivered
// are dropped. Safe to call more than once.
func (h *Handle) Cancel() {
	h.cancel()
	<-h.done
}

// Done is closed once the run has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the error that ended the run, or nil while it is still
// running, after a clean completion, or after cancellation.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *Handle) finish(err error) {
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errStop) {
		h.err = err
	}
}

// Each runs the stream in a new goroutine and calls fn for every value.
func (s Stream[T]) Each(ctx context.Context, fn func(T)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	go func() {
		defer close(h.done)
		h.finish(s.Run(ctx, func(v T) error {
			fn(v)
			return nil
		}))
	}()
	return h
}

// Subscription delivers a running stream's values on a channel.
// C is closed when the run ends.
type Subscription[T any] struct {
	*Handle
	C <-chan T
}

// Subscribe runs the stream in a new goroutine and delivers values on C.
func (s Stream[T]) Subscribe(ctx context.Context) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan T)
	sub := &Subscription[T]{Handle: newHandle(cancel), C: ch}
	go func() {
		err := s.Run(ctx, func(v T) error {
			select {
			case ch <- v:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		sub.finish(err)
		// done before C, so Err is settled once a reader sees C closed.
		close(sub.done)
		close(ch)
	}()
	return sub
}
