package dispatchq

import (
	"errors"
	"fmt"
)

// ----------------------------
// Error taxonomy
// ----------------------------

// Predefined sentinel errors surfaced by queue and task operations
var (
	// ErrQueueShutdown is returned synchronously when work is submitted to a
	// queue that no longer accepts it.
	ErrQueueShutdown = errors.New("serial queue is shut down")

	// ErrCancelled is the outcome of a task that was stopped cooperatively
	// before completion.
	ErrCancelled = errors.New("task cancelled")

	// ErrTimeout is the caller-level outcome of awaiting a future past its
	// deadline. The future itself keeps running on its queue.
	ErrTimeout = errors.New("timeout")

	// ErrQueueMismatch is returned when an operation requires two handles
	// bound to the same queue and they are not.
	ErrQueueMismatch = errors.New("handles bound to different queues")
)

// FailedError carries the opaque payload of a task body that terminated
// abnormally, together with the stack captured at the point of failure.
type FailedError struct {
	Payload any
	Stack   []byte
}

// Error implements the error interface
func (e *FailedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("task failed: %v", e.Payload)
}

// Unwrap exposes a wrapped error payload, if the panic value was an error
func (e *FailedError) Unwrap() error {
	if err, ok := e.Payload.(error); ok {
		return err
	}
	return nil
}

// IsFailed reports whether err carries a FailedError
func IsFailed(err error) bool {
	var fe *FailedError
	return errors.As(err, &fe)
}

// ----------------------------
// Task states
// ----------------------------

// TaskState tracks a task through its lifecycle. Terminal states are sticky:
// a task never leaves Completed, Cancelled or Failed.
type TaskState int32

const (
	TaskCreated TaskState = iota
	TaskScheduled
	TaskRunning
	TaskSuspended
	TaskCompleted
	TaskCancelled
	TaskFailed
)

// String returns a human-readable state name
func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskScheduled:
		return "scheduled"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	case TaskFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Terminal reports whether s is a final state
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled || s == TaskFailed
}
