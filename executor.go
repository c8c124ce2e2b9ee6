package dispatchq

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/dispatchq/mainthread"
)

// ----------------------------
// Executor
// ----------------------------

// Executor spawns and polls cooperative tasks on a single SerialQueue. All
// polls of all its tasks are serialized by that queue; distinct executors on
// distinct queues run fully in parallel.
type Executor struct {
	queue     *SerialQueue
	ownsQueue bool
	log       logrus.FieldLogger

	tasks  *hashmap.Map[uint64, *Task]
	nextID atomic.Uint64
}

// NewExecutor binds an executor to an existing queue. A nil logger selects
// the standard logrus logger.
func NewExecutor(q *SerialQueue, logger *logrus.Logger) *Executor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Executor{
		queue: q,
		log:   logger.WithField("queue", q.Label()),
		tasks: hashmap.New[uint64, *Task](),
	}
}

// NewBackgroundExecutor creates a fresh serial queue with the given label and
// an executor owning it. Closing the executor shuts the queue down.
func NewBackgroundExecutor(label string) *Executor {
	e := NewExecutor(NewSerialQueue(label, nil), nil)
	e.ownsQueue = true
	return e
}

// MainExecutor returns an executor bound to the process-wide main queue. The
// marker makes the main-thread requirement visible at the call site; the
// queue only runs once RunMain drives it.
func MainExecutor(m mainthread.Marker) *Executor {
	return NewExecutor(Main(m), nil)
}

// Queue returns the bound serial queue
func (e *Executor) Queue() *SerialQueue {
	return e.queue
}

// TaskCount returns the number of live (non-terminal) tasks
func (e *Executor) TaskCount() int {
	return e.tasks.Len()
}

// RunUntilStalled drains ready work on the bound queue until none remains.
// Suspended tasks stay parked; only their pending re-polls count as ready.
func (e *Executor) RunUntilStalled() error {
	return e.queue.RunUntilStalled()
}

// Close cancels every live task, waits for the cancellations to land, and
// shuts the queue down if the executor owns it.
func (e *Executor) Close() error {
	e.tasks.Range(func(_ uint64, t *Task) bool {
		t.cancel()
		return true
	})
	if err := e.queue.WaitIdle(); err != nil {
		return err
	}
	if e.ownsQueue {
		e.queue.Shutdown()
	}
	return nil
}

// Spawn schedules the first poll of fn on the executor's queue and returns
// immediately. The computation proceeds asynchronously; its outcome is
// observed through the JoinHandle. Returns ErrQueueShutdown synchronously if
// the queue no longer accepts work.
func Spawn[R any](e *Executor, fn TaskFunc[R]) (*JoinHandle[R], error) {
	fut := newFuture[R]()
	t := &Task{
		id:    e.nextID.Add(1),
		queue: e.queue,
		log:   e.log,
	}

	// result is only written during a poll and read by onFinish right after,
	// both on the queue; no extra synchronization is needed.
	var result R
	t.pollFn = func(tc *TaskContext) pollOutcome {
		step := fn(tc)
		if step.kind == stepReady {
			result = step.value
		}
		return pollOutcome{kind: step.kind, err: step.err}
	}
	t.onFinish = func(err error) {
		if err != nil {
			var zero R
			fut.complete(zero, err)
			return
		}
		fut.complete(result, nil)
	}
	t.unregister = func() {
		e.tasks.Del(t.id)
	}

	t.state.Store(int32(TaskScheduled))
	t.scheduled.Store(true)

	// Register before the first poll can possibly run and unregister.
	e.tasks.Set(t.id, t)
	if err := e.queue.Enqueue(t.runPoll); err != nil {
		e.tasks.Del(t.id)
		return nil, err
	}

	e.log.WithField("task", t.id).Debug("task spawned")
	return &JoinHandle[R]{task: t, fut: fut}, nil
}

// ----------------------------
// JoinHandle
// ----------------------------

// JoinHandle owns the right to observe a spawned task's outcome and to
// request its cancellation. Cancellation is cooperative: a running poll is
// never interrupted mid-flight, and cleanup runs on the bound queue.
type JoinHandle[R any] struct {
	task     *Task
	fut      *Future[R]
	detached atomic.Bool
}

// Await blocks until the task reaches a terminal state or ctx ends.
// Cancellation surfaces as ErrCancelled, abnormal termination as
// *FailedError, and a ctx deadline as ErrTimeout.
func (h *JoinHandle[R]) Await(ctx context.Context) (R, error) {
	return h.fut.Await(ctx)
}

// AwaitTimeout is Await with a relative deadline
func (h *JoinHandle[R]) AwaitTimeout(d time.Duration) (R, error) {
	return h.fut.AwaitTimeout(d)
}

// Done returns a channel closed once the task is terminal
func (h *JoinHandle[R]) Done() <-chan struct{} {
	return h.fut.Done()
}

// TryGet returns the outcome without blocking
func (h *JoinHandle[R]) TryGet() (R, bool, error) {
	return h.fut.TryGet()
}

// State returns the task's current lifecycle state
func (h *JoinHandle[R]) State() TaskState {
	return h.task.State()
}

// Cancel requests cooperative cancellation. The task stops at its next
// suspension point; in-flight synchronous work inside a poll completes
// first. Detached handles no longer cancel.
func (h *JoinHandle[R]) Cancel() {
	if h.detached.Load() {
		return
	}
	h.task.cancel()
}

// Detach gives up the right to cancel, letting the task run to its natural
// outcome in the background. Await remains valid.
func (h *JoinHandle[R]) Detach() {
	h.detached.Store(true)
}
