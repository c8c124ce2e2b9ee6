package dispatchq

import (
	"runtime/debug"
	"sync/atomic"
)

// ----------------------------
// Handle
// ----------------------------

// HandleOptions configures a confined value
type HandleOptions[T any] struct {
	// Release runs on the bound queue when the handle is closed. Optional.
	Release func(*T)
}

// Handle confines a value to one SerialQueue for its entire lifetime. The
// value is constructed on the queue, only ever touched by closures marshaled
// onto the queue, and released on the queue. The queue's serialization
// substitutes for any lock: no other synchronization guards the value, and
// none is permitted.
//
// The closures passed to With and Lock are handed across goroutines; their
// captured data must tolerate that. The confined value never leaves the
// queue, so it carries no such obligation.
type Handle[T any] struct {
	queue   *SerialQueue
	value   *T
	release func(*T)
	closed  atomic.Bool
}

// NewHandle constructs a value on the queue and returns a handle confined to
// it. The constructor runs on the queue; NewHandle blocks until it has.
// Returns ErrQueueShutdown if the queue no longer accepts work.
func NewHandle[T any](q *SerialQueue, ctor func() T, opts *HandleOptions[T]) (*Handle[T], error) {
	h := &Handle[T]{queue: q}
	if opts != nil {
		h.release = opts.Release
	}
	if err := q.Sync(func() {
		v := ctor()
		h.value = &v
	}); err != nil {
		return nil, err
	}
	return h, nil
}

// Queue returns the queue the value is confined to
func (h *Handle[T]) Queue() *SerialQueue {
	return h.queue
}

// With schedules fn(&value) on the bound queue and returns a future that
// resolves once it has actually run. A panic inside fn fails the future
// only; the queue and other users of the handle are unaffected.
func (h *Handle[T]) With(fn func(*T)) (*Future[struct{}], error) {
	return WithResult(h, func(v *T) struct{} {
		fn(v)
		return struct{}{}
	})
}

// Lock runs fn(&value) on the bound queue and blocks until it returns. Runs
// inline when the caller is already on the queue.
func (h *Handle[T]) Lock(fn func(*T)) error {
	return h.queue.Sync(func() {
		fn(h.value)
	})
}

// Close schedules the release function on the bound queue and gives up the
// handle. If the queue has already shut down, the release runs synchronously
// on the calling goroutine instead: a best-effort fallback that trades
// strict confinement for forward progress.
func (h *Handle[T]) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if h.release == nil {
		return nil
	}
	release, value := h.release, h.value
	err := h.queue.Enqueue(func() {
		release(value)
	})
	if err != nil {
		h.queue.log.Warn("queue shut down, releasing confined value off-queue")
		release(value)
	}
	return err
}

// WithResult schedules fn(&value) on the handle's queue and returns a future
// resolving with fn's result. This is the package-level form of Handle.With
// for closures that produce a value.
func WithResult[T, R any](h *Handle[T], fn func(*T) R) (*Future[R], error) {
	fut := newFuture[R]()
	err := h.queue.Enqueue(func() {
		defer func() {
			if r := recover(); r != nil {
				var zero R
				fut.complete(zero, &FailedError{Payload: r, Stack: debug.Stack()})
			}
		}()
		fut.complete(fn(h.value), nil)
	})
	if err != nil {
		return nil, err
	}
	return fut, nil
}

// LockResult runs fn(&value) on the handle's queue, blocking until it
// returns, and yields its result.
func LockResult[T, R any](h *Handle[T], fn func(*T) R) (R, error) {
	var out R
	err := h.queue.Sync(func() {
		out = fn(h.value)
	})
	return out, err
}

// WithBoth schedules fn against two values confined to the same queue.
// Returns ErrQueueMismatch when the handles are bound to different queues.
func WithBoth[T, U, R any](a *Handle[T], b *Handle[U], fn func(*T, *U) R) (*Future[R], error) {
	if a.queue != b.queue {
		return nil, ErrQueueMismatch
	}
	return WithResult(a, func(v *T) R {
		return fn(v, b.value)
	})
}
