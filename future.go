package dispatchq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Future is the caller-side view of a result that will be produced on a
// serial queue. It resolves exactly once, either with a value or an error.
type Future[R any] struct {
	once  sync.Once
	done  chan struct{}
	value R
	err   error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// complete resolves the future. Later calls are no-ops; the first outcome
// sticks.
func (f *Future[R]) complete(v R, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed once the future has resolved
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// TryGet returns the outcome without blocking. ok is false while the future
// is still pending.
func (f *Future[R]) TryGet() (value R, ok bool, err error) {
	select {
	case <-f.done:
		return f.value, true, f.err
	default:
		var zero R
		return zero, false, nil
	}
}

// Await blocks until the future resolves or ctx ends. A deadline expiry is
// reported as ErrTimeout; the scheduled closure itself cannot be retracted
// and still runs on its queue.
func (f *Future[R]) Await(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return zero, ctx.Err()
	}
}

// AwaitTimeout is Await with a relative deadline
func (f *Future[R]) AwaitTimeout(d time.Duration) (R, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return f.Await(ctx)
}
