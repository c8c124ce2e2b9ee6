package dispatchq

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/dispatchq/internal/goid"
)

// ----------------------------
// SerialQueue
// ----------------------------

var nextQueueID atomic.Uint64

// QueueOptions configures queue behavior
type QueueOptions struct {
	// Logger receives queue lifecycle and failure events. Defaults to the
	// standard logrus logger.
	Logger *logrus.Logger

	// Manual disables the self-draining worker. Closures accumulate until the
	// queue is driven explicitly via RunUntilStalled or an attached run loop
	// (the main queue). Useful for deterministic tests.
	Manual bool
}

// DefaultQueueOptions returns default queue options
func DefaultQueueOptions() *QueueOptions {
	return &QueueOptions{}
}

// SerialQueue is a FIFO execution context and the sole synchronization
// primitive of this library. At most one enqueued closure executes at any
// instant, and closures submitted to the same queue run in submission order.
//
// The queue owns no dedicated OS thread: a drain goroutine is spawned per
// burst of work, so thread affinity is a property of the queue, not of a
// fixed thread. IsCurrent answers "am I executing on this queue right now".
type SerialQueue struct {
	label  string
	id     uint64
	manual bool
	log    logrus.FieldLogger

	mu        sync.Mutex
	idle      *sync.Cond // signaled whenever a drain leaves the queue empty
	work      *queue.Queue
	running   bool
	down      bool
	timers    *orderedmap.OrderedMap[uint64, *time.Timer]
	nextTimer uint64

	downCh chan struct{} // closed on Shutdown
	wakeCh chan struct{} // manual mode: signals an attached run loop

	workerGID atomic.Uint64
}

// NewSerialQueue creates a queue with the given label. A nil opts selects
// defaults (self-draining, standard logger).
func NewSerialQueue(label string, opts *QueueOptions) *SerialQueue {
	if opts == nil {
		opts = DefaultQueueOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	q := &SerialQueue{
		label:  label,
		id:     nextQueueID.Add(1),
		manual: opts.Manual,
		log:    logger.WithField("queue", label),
		work:   queue.New(),
		timers: orderedmap.New[uint64, *time.Timer](),
		downCh: make(chan struct{}),
		wakeCh: make(chan struct{}, 1),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Label returns the queue label
func (q *SerialQueue) Label() string {
	return q.label
}

// Enqueue schedules fn for future execution on the queue and returns
// immediately. Closures run atomically to completion, in submission order.
// Returns ErrQueueShutdown if the queue no longer accepts work.
func (q *SerialQueue) Enqueue(fn func()) error {
	q.mu.Lock()
	if q.down {
		q.mu.Unlock()
		return ErrQueueShutdown
	}
	q.work.Add(fn)

	if q.manual {
		q.mu.Unlock()
		select {
		case q.wakeCh <- struct{}{}:
		default:
		}
		return nil
	}

	spawn := !q.running
	if spawn {
		q.running = true
	}
	q.mu.Unlock()

	if spawn {
		goid.Go("queue/"+q.label, q.drain)
	}
	return nil
}

// EnqueueAfter schedules fn to be enqueued once delay elapses. The timer is
// independent of the queue's drain loop; if the queue shuts down before it
// fires, the closure is dropped.
func (q *SerialQueue) EnqueueAfter(delay time.Duration, fn func()) error {
	q.mu.Lock()
	if q.down {
		q.mu.Unlock()
		return ErrQueueShutdown
	}
	q.nextTimer++
	id := q.nextTimer
	t := time.AfterFunc(delay, func() {
		q.mu.Lock()
		q.timers.Delete(id)
		q.mu.Unlock()
		if err := q.Enqueue(fn); err != nil {
			q.log.WithField("timer", id).Debug("delayed closure dropped, queue shut down")
		}
	})
	q.timers.Set(id, t)
	q.mu.Unlock()
	return nil
}

// Sync runs fn on the queue and blocks until it has executed. When the
// caller is already on the queue, fn runs inline; the queue's serialization
// already covers it, and blocking would deadlock.
func (q *SerialQueue) Sync(fn func()) error {
	if q.IsCurrent() {
		fn()
		return nil
	}
	done := make(chan struct{})
	if err := q.Enqueue(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// IsCurrent reports whether the calling goroutine is executing on this queue
// right now.
func (q *SerialQueue) IsCurrent() bool {
	gid := q.workerGID.Load()
	return gid != 0 && gid == goid.Current()
}

// WaitIdle blocks until the queue has no ready work left. Work that becomes
// ready later (timers, wakes from other goroutines) is not waited for. On a
// shut-down or undriven manual queue it waits only for the active drain, if
// any, to finish. Calling WaitIdle from the queue itself is a no-op.
func (q *SerialQueue) WaitIdle() error {
	if q.IsCurrent() {
		return nil
	}
	for {
		q.mu.Lock()
		if q.down || q.manual {
			for q.running {
				q.idle.Wait()
			}
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()

		if err := q.Sync(func() {}); err != nil {
			// Shutdown raced in; take the drain-wait path above.
			continue
		}
		q.mu.Lock()
		empty := q.work.Length() == 0
		q.mu.Unlock()
		if empty {
			return nil
		}
	}
}

// RunUntilStalled drains ready work until none remains, then returns. On a
// manual queue the calling goroutine becomes the worker; on a self-draining
// queue this is equivalent to WaitIdle.
func (q *SerialQueue) RunUntilStalled() error {
	if !q.manual {
		return q.WaitIdle()
	}

	q.mu.Lock()
	if q.running {
		// Another goroutine is driving; fall back to waiting.
		for q.running {
			q.idle.Wait()
		}
		q.mu.Unlock()
		return nil
	}
	if q.work.Length() == 0 {
		q.mu.Unlock()
		return nil
	}
	q.running = true
	q.mu.Unlock()

	q.drain()
	return nil
}

// Shutdown stops the queue from accepting new work and cancels pending
// timers. Closures already enqueued still run; they cannot be retracted.
// Shutdown is idempotent.
func (q *SerialQueue) Shutdown() {
	q.mu.Lock()
	if q.down {
		q.mu.Unlock()
		return
	}
	q.down = true
	for pair := q.timers.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.Stop()
	}
	q.timers = orderedmap.New[uint64, *time.Timer]()
	close(q.downCh)
	q.mu.Unlock()

	q.log.Debug("queue shut down")
}

// Done returns a channel closed once the queue has been shut down
func (q *SerialQueue) Done() <-chan struct{} {
	return q.downCh
}

// drain runs queued closures until none remain. The caller must have set
// q.running under q.mu; exactly one drainer exists at a time.
func (q *SerialQueue) drain() {
	q.workerGID.Store(goid.Current())
	for {
		q.mu.Lock()
		if q.work.Length() == 0 {
			q.workerGID.Store(0)
			q.running = false
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		fn := q.work.Remove().(func())
		q.mu.Unlock()

		q.invoke(fn)
	}
}

// invoke runs one closure, containing any panic so the queue keeps
// processing the work behind it.
func (q *SerialQueue) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("closure panicked on serial queue")
		}
	}()
	fn()
}
