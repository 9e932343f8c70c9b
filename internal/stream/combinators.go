package stream

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SwitchMap maps every value of src to an inner stream and forwards the
// values of the most recent inner stream only. When src emits again, the
// previous inner run is cancelled, including any value it had not yet
// handed over. The result completes once src and the last inner stream have
// both completed.
func SwitchMap[T, U any](src Stream[T], fn func(T) Stream[U]) Stream[U] {
	return New(func(parent context.Context, yield func(U) error) error {
		var wg sync.WaitGroup
		defer wg.Wait()
		ctx, cancel := context.WithCancel(parent)
		defer cancel()

		outerVals := make(chan T)
		outerErrc := make(chan error, 1)
		wg.Go(func() {
			outerErrc <- src.Run(ctx, func(v T) error {
				select {
				case outerVals <- v:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		})

		var (
			stopInner  context.CancelFunc = func() {}
			innerVals  <-chan U
			innerErrc  <-chan error
			outerDone  <-chan error = outerErrc
			outerEnded bool
		)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case v := <-outerVals:
				stopInner()
				innerCtx, innerCancel := context.WithCancel(ctx)
				vals := make(chan U)
				errc := make(chan error, 1)
				inner := fn(v)
				wg.Go(func() {
					errc <- inner.Run(innerCtx, func(u U) error {
						select {
						case vals <- u:
							return nil
						case <-innerCtx.Done():
							return innerCtx.Err()
						}
					})
				})
				stopInner, innerVals, innerErrc = innerCancel, vals, errc

			case u := <-innerVals:
				if err := yield(u); err != nil {
					return err
				}

			case err := <-innerErrc:
				innerVals, innerErrc = nil, nil
				if err != nil {
					return err
				}
				if outerEnded {
					return nil
				}

			case err := <-outerDone:
				outerDone = nil
				if err != nil {
					return err
				}
				outerEnded = true
				if innerErrc == nil {
					return nil
				}
			}
		}
	})
}

// CombineLatest runs all sources concurrently and, once every source has
// produced a value, yields the latest value of each (in source order)
// whenever any of them emits. A failing source cancels the others. With no
// sources it yields a single empty slice.
func CombineLatest[T any](sources []Stream[T]) Stream[[]T] {
	return New(func(parent context.Context, yield func([]T) error) error {
		if len(sources) == 0 {
			return yield([]T{})
		}

		ctx, cancel := context.WithCancel(parent)
		g, gctx := errgroup.WithContext(ctx)

		type update struct {
			idx int
			val T
		}
		updates := make(chan update)
		for i, src := range sources {
			g.Go(func() error {
				return src.Run(gctx, func(v T) error {
					select {
					case updates <- update{idx: i, val: v}:
						return nil
					case <-gctx.Done():
						return gctx.Err()
					}
				})
			})
		}

		finished := make(chan error, 1)
		go func() { finished <- g.Wait() }()

		stop := func() error {
			cancel()
			return <-finished
		}

		latest := make([]T, len(sources))
		seen := make([]bool, len(sources))
		missing := len(sources)
		for {
			select {
			case u := <-updates:
				latest[u.idx] = u.val
				if !seen[u.idx] {
					seen[u.idx] = true
					missing--
				}
				if missing > 0 {
					continue
				}
				if err := yield(slices.Clone(latest)); err != nil {
					_ = stop()
					return err
				}

			case err := <-finished:
				cancel()
				if err == nil && parent.Err() != nil {
					return parent.Err()
				}
				return err
			}
		}
	})
}
