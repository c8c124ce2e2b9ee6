package dispatchq

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ----------------------------
// Step protocol
// ----------------------------

type stepKind int

const (
	stepPending stepKind = iota
	stepReady
	stepFailed
)

// Step is the return value of one poll of a task body. It tells the executor
// whether the task completed, failed, or suspended until its Waker fires.
type Step[R any] struct {
	kind  stepKind
	value R
	err   error
}

// Ready completes the task with v
func Ready[R any](v R) Step[R] {
	return Step[R]{kind: stepReady, value: v}
}

// Pending suspends the task until its Waker fires. The body must have handed
// its Waker to whatever will eventually produce the event it awaits.
func Pending[R any]() Step[R] {
	return Step[R]{kind: stepPending}
}

// Fail completes the task with err
func Fail[R any](err error) Step[R] {
	return Step[R]{kind: stepFailed, err: err}
}

// TaskFunc is a cooperative task body. It is called once per poll, always on
// the bound queue, and must not block; long waits are expressed by returning
// Pending after arranging a wake.
type TaskFunc[R any] func(tc *TaskContext) Step[R]

// ----------------------------
// Task core
// ----------------------------

type pollOutcome struct {
	kind stepKind
	err  error
}

// Task is the executor-owned bookkeeping for one spawned computation. The
// typed value travels through the JoinHandle; Task itself only tracks state.
type Task struct {
	id    uint64
	queue *SerialQueue
	log   logrus.FieldLogger

	state     atomic.Int32
	scheduled atomic.Bool // a (re-)poll is enqueued; coalesces redundant wakes
	cancelled atomic.Bool
	finished  atomic.Bool

	// pollFn and onFinish only ever run on the queue, or on the caller as a
	// last-resort fallback when the queue is already gone.
	pollFn   func(tc *TaskContext) pollOutcome
	onFinish func(err error)
	cleanups []func()

	unregister func()
}

// ID returns the executor-local task id
func (t *Task) ID() uint64 {
	return t.id
}

// State returns the task's current lifecycle state
func (t *Task) State() TaskState {
	return TaskState(t.state.Load())
}

// wake schedules a re-poll. Multiple wakes issued before that re-poll runs
// coalesce into a single poll; waking a terminal task is a no-op.
func (t *Task) wake() {
	if t.State().Terminal() {
		return
	}
	if !t.scheduled.CompareAndSwap(false, true) {
		return
	}
	t.state.CompareAndSwap(int32(TaskSuspended), int32(TaskScheduled))
	if err := t.queue.Enqueue(t.runPoll); err != nil {
		// The queue is gone, so the re-poll can never run. Resolve the join
		// off-queue rather than leaving the caller suspended forever.
		t.log.Warn("queue shut down under a live task, finishing off-queue")
		t.finish(TaskCancelled, fmt.Errorf("%w: %v", ErrCancelled, err))
	}
}

// cancel requests cooperative cancellation and forces a poll so the task
// reaches its next boundary even if nothing else would wake it.
func (t *Task) cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.wake()
	}
}

// runPoll executes one poll on the queue.
func (t *Task) runPoll() {
	if t.State().Terminal() {
		// Stale poll left over from a wake that raced completion.
		return
	}
	t.scheduled.Store(false)

	if t.cancelled.Load() {
		t.finish(TaskCancelled, ErrCancelled)
		return
	}

	t.state.Store(int32(TaskRunning))
	out := t.safePoll()

	switch out.kind {
	case stepReady:
		t.finish(TaskCompleted, nil)
	case stepFailed:
		t.finish(TaskFailed, out.err)
	default:
		t.state.Store(int32(TaskSuspended))
	}
}

// safePoll calls the body, converting a panic into a Failed outcome so one
// task's abnormal termination never halts the queue's other work.
func (t *Task) safePoll() (out pollOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = pollOutcome{kind: stepFailed, err: &FailedError{
				Payload: r,
				Stack:   debug.Stack(),
			}}
		}
	}()
	return t.pollFn(&TaskContext{task: t})
}

// finish moves the task to a terminal state, runs cleanups in LIFO order and
// resolves the join. Runs on the queue except for the shutdown fallback.
func (t *Task) finish(s TaskState, err error) {
	if !t.finished.CompareAndSwap(false, true) {
		return
	}
	t.state.Store(int32(s))

	for i := len(t.cleanups) - 1; i >= 0; i-- {
		fn := t.cleanups[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.log.WithField("panic", r).Error("task cleanup panicked")
				}
			}()
			fn()
		}()
	}
	t.cleanups = nil

	t.onFinish(err)
	if t.unregister != nil {
		t.unregister()
	}
	t.log.WithFields(logrus.Fields{"task": t.id, "state": s.String()}).Debug("task finished")
}

// ----------------------------
// TaskContext / Waker
// ----------------------------

// TaskContext is handed to a task body on every poll. It is only valid for
// the duration of that poll, except for the Waker, which may be retained and
// invoked from any goroutine.
type TaskContext struct {
	task *Task
}

// Waker returns the task's waker. Safe to hand across goroutines.
func (tc *TaskContext) Waker() *Waker {
	return &Waker{task: tc.task}
}

// Cancelled reports whether cancellation has been requested. Bodies doing
// multi-step work may check it to stop early; the executor checks it at
// every poll boundary regardless.
func (tc *TaskContext) Cancelled() bool {
	return tc.task.cancelled.Load()
}

// Queue returns the queue the task is bound to
func (tc *TaskContext) Queue() *SerialQueue {
	return tc.task.queue
}

// OnCleanup registers fn to run on the bound queue when the task reaches a
// terminal state, in LIFO order. Registration is only valid during a poll.
func (tc *TaskContext) OnCleanup(fn func()) {
	tc.task.cleanups = append(tc.task.cleanups, fn)
}

// Waker re-enqueues its task for another poll. Invocations are idempotent:
// any number of wakes issued before the next poll runs collapse into one.
type Waker struct {
	task *Task
}

// Wake schedules a re-poll of the associated task
func (w *Waker) Wake() {
	w.task.wake()
}
