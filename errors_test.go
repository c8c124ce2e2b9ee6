package dispatchq

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailedError(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{
			name:    "string payload",
			payload: "boom",
			want:    `task failed: boom`,
		},
		{
			name:    "error payload",
			payload: errors.New("inner"),
			want:    `task failed: inner`,
		},
		{
			name:    "integer payload",
			payload: 42,
			want:    `task failed: 42`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &FailedError{Payload: tt.payload}
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, IsFailed(err))
		})
	}
}

func TestFailedError_UnwrapsErrorPayload(t *testing.T) {
	inner := errors.New("inner")
	err := fmt.Errorf("spawn: %w", &FailedError{Payload: inner})

	assert.True(t, IsFailed(err))
	assert.ErrorIs(t, err, inner, "an error payload MUST unwrap")
}

func TestFailedError_NonErrorPayloadDoesNotUnwrap(t *testing.T) {
	err := &FailedError{Payload: "plain string"}
	assert.Nil(t, err.Unwrap())
}

func TestTaskState_String(t *testing.T) {
	assert.Equal(t, "created", TaskCreated.String())
	assert.Equal(t, "scheduled", TaskScheduled.String())
	assert.Equal(t, "running", TaskRunning.String())
	assert.Equal(t, "suspended", TaskSuspended.String())
	assert.Equal(t, "completed", TaskCompleted.String())
	assert.Equal(t, "cancelled", TaskCancelled.String())
	assert.Equal(t, "failed", TaskFailed.String())
	assert.Equal(t, "unknown(99)", TaskState(99).String())
}

func TestTaskState_Terminal(t *testing.T) {
	for _, s := range []TaskState{TaskCompleted, TaskCancelled, TaskFailed} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []TaskState{TaskCreated, TaskScheduled, TaskRunning, TaskSuspended} {
		assert.False(t, s.Terminal(), s.String())
	}
}
