package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains a finite stream.
func collect[T any](t *testing.T, s Stream[T]) []T {
	t.Helper()
	var out []T
	err := s.Run(context.Background(), func(v T) error {
		out = append(out, v)
		return nil
	})
	require.NoError(t, err)
	return out
}

func recv[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C:
		require.True(t, ok, "stream ended early: %v", sub.Err())
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

// pushSource is a hot test source: every run receives values sent on its
// own channel, and runs counts subscriptions.
type pushSource[T any] struct {
	runs  atomic.Int32
	chans chan chan T
}

func newPushSource[T any]() *pushSource[T] {
	return &pushSource[T]{chans: make(chan chan T, 16)}
}

func (p *pushSource[T]) stream() Stream[T] {
	return New(func(ctx context.Context, yield func(T) error) error {
		p.runs.Add(1)
		ch := make(chan T)
		p.chans <- ch
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				if err := yield(v); err != nil {
					return err
				}
			}
		}
	})
}

func (p *pushSource[T]) nextRun(t *testing.T) chan T {
	t.Helper()
	select {
	case ch := <-p.chans:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("source was not subscribed")
		return nil
	}
}

func TestOfAndMap(t *testing.T) {
	s := Map(Of(1, 2, 3), func(v int) int { return v * 10 })
	assert.Equal(t, []int{10, 20, 30}, collect(t, s))
	// Restartable: a second run yields the same values.
	assert.Equal(t, []int{10, 20, 30}, collect(t, s))
}

func TestFirst(t *testing.T) {
	v, err := First(context.Background(), Of("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = First(context.Background(), Of[string]())
	assert.ErrorIs(t, err, ErrEmpty)

	boom := errors.New("boom")
	_, err = First(context.Background(), Fail[string](boom))
	assert.ErrorIs(t, err, boom)
}

func TestSubscribe_DeliversThenCloses(t *testing.T) {
	sub := Of(1, 2).Subscribe(context.Background())

	assert.Equal(t, 1, recv(t, sub))
	assert.Equal(t, 2, recv(t, sub))

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
}

func TestSubscribe_ReportsSourceError(t *testing.T) {
	boom := errors.New("boom")
	sub := Fail[int](boom).Subscribe(context.Background())

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), boom)
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	src := newPushSource[int]()
	sub := src.stream().Subscribe(context.Background())
	ch := src.nextRun(t)

	ch <- 1
	assert.Equal(t, 1, recv(t, sub))

	sub.Cancel()
	sub.Cancel() // idempotent
	assert.NoError(t, sub.Err())

	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestEach(t *testing.T) {
	var sum atomic.Int32
	h := Of[int32](1, 2, 3).Each(context.Background(), func(v int32) { sum.Add(v) })

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Each did not finish")
	}
	assert.Equal(t, int32(6), sum.Load())
	assert.NoError(t, h.Err())
}

func TestSwitchMap_FollowsLatestInner(t *testing.T) {
	outer := newPushSource[string]()
	inners := map[string]*pushSource[string]{
		"a": newPushSource[string](),
		"b": newPushSource[string](),
	}

	s := SwitchMap(outer.stream(), func(key string) Stream[string] {
		return inners[key].stream()
	})
	sub := s.Subscribe(context.Background())
	defer sub.Cancel()

	outerCh := outer.nextRun(t)

	outerCh <- "a"
	aCh := inners["a"].nextRun(t)
	aCh <- "a1"
	assert.Equal(t, "a1", recv(t, sub))

	outerCh <- "b"
	bCh := inners["b"].nextRun(t)

	// The stale inner run was cancelled; whatever it still pushes is dropped.
	select {
	case aCh <- "a2":
	case <-time.After(50 * time.Millisecond):
	}

	bCh <- "b1"
	assert.Equal(t, "b1", recv(t, sub))
}

func TestSwitchMap_CompletesAfterOuterAndInner(t *testing.T) {
	s := SwitchMap(Of(1, 2), func(v int) Stream[int] {
		return Of(v, v*100)
	})
	out := collect(t, s)
	// Values of the last inner stream are always delivered in full.
	require.GreaterOrEqual(t, len(out), 2)
	assert.Equal(t, []int{2, 200}, out[len(out)-2:])
}

func TestSwitchMap_InnerErrorFailsStream(t *testing.T) {
	boom := errors.New("boom")
	s := SwitchMap(Of(1), func(int) Stream[int] { return Fail[int](boom) })
	err := s.Run(context.Background(), func(int) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestCombineLatest(t *testing.T) {
	left := newPushSource[int]()
	right := newPushSource[int]()

	sub := CombineLatest([]Stream[int]{left.stream(), right.stream()}).Subscribe(context.Background())
	defer sub.Cancel()

	l := left.nextRun(t)
	r := right.nextRun(t)

	l <- 1
	// Nothing until every source has emitted.
	select {
	case v := <-sub.C:
		t.Fatalf("unexpected early value %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	r <- 10
	assert.Equal(t, []int{1, 10}, recv(t, sub))

	l <- 2
	assert.Equal(t, []int{2, 10}, recv(t, sub))
}

func TestCombineLatest_EmptyAndErrors(t *testing.T) {
	out := collect(t, CombineLatest[int](nil))
	assert.Equal(t, [][]int{{}}, out)

	boom := errors.New("boom")
	src := newPushSource[int]()
	s := CombineLatest([]Stream[int]{src.stream(), Fail[int](boom)})
	err := s.Run(context.Background(), func([]int) error { return nil })
	assert.ErrorIs(t, err, boom)
	// The healthy source was cancelled.
	assert.Equal(t, int32(1), src.runs.Load())
}
