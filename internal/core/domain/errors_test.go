package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrInvalidCursor", ErrInvalidCursor},
		{"ErrPermissionDenied", ErrPermissionDenied},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrConnection", ErrConnection},
		{"ErrSubscriptionCancelled", ErrSubscriptionCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestTaskError(t *testing.T) {
	task := Task{Type: TaskCommit, RepositoryID: 42}

	t.Run("nil error stays nil", func(t *testing.T) {
		assert.NoError(t, NewTaskError(task, nil))
	})

	t.Run("unwraps to task context through further wrapping", func(t *testing.T) {
		err := fmt.Errorf("process step: %w", NewTaskError(task, ErrPermissionDenied))

		var taskErr *TaskError
		require.True(t, errors.As(err, &taskErr))
		assert.Equal(t, TaskCommit, taskErr.Task.Type)
		assert.Equal(t, int64(42), taskErr.Task.RepositoryID)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.Contains(t, err.Error(), "task commit on repository 42")
	})
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      FailedCode
		permanent bool
	}{
		{"permission", fmt.Errorf("list commits: %w", ErrPermissionDenied), FailedCodePermissions, true},
		{"not found", ErrNotFound, FailedCodeNotFound, true},
		{"connection", ErrConnection, FailedCodeConnection, false},
		{"unknown", errors.New("boom"), FailedCodeConnection, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ClassifyFailure(tt.err))
			assert.Equal(t, tt.permanent, IsPermanent(tt.err))
		})
	}
}
