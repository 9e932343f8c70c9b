package service

import (
	"context"
	"sync"

	"github.com/booknestapp/booknest-server/internal/stream"
)

// notifier wakes the Changes streams of a service. Signals are conflated:
// a watcher that has not consumed the previous signal gets no second one
// and reads the latest state when it catches up.
type notifier struct {
	mu       sync.Mutex
	watchers map[chan struct{}]struct{}
	closed   bool
}

func newNotifier() *notifier {
	return &notifier{watchers: make(map[chan struct{}]struct{})}
}

func (n *notifier) watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	n.watchers[ch] = struct{}{}

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.watchers, ch)
	}
}

func (n *notifier) signal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// close ends every watcher. Later watches start closed.
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for ch := range n.watchers {
		close(ch)
		delete(n.watchers, ch)
	}
}

// changes yields snapshot() now and after every signal until ctx ends or
// the notifier is closed.
func changes[T any](n *notifier, snapshot func() T) stream.Stream[T] {
	return stream.New(func(ctx context.Context, yield func(T) error) error {
		sig, stop := n.watch()
		defer stop()

		if err := yield(snapshot()); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case _, ok := <-sig:
				if !ok {
					return nil
				}
				if err := yield(snapshot()); err != nil {
					return err
				}
			}
		}
	})
}
