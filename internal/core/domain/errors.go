package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCursor indicates a stored cursor could not be parsed.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrPermissionDenied indicates the provider refused access to a resource.
	// Tasks failing with this error are never retried.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrConnection indicates a transient network or storage failure.
	ErrConnection = errors.New("connection error")

	// ErrSubscriptionCancelled indicates the subscription was stopped
	// or removed while a backfill was in flight.
	ErrSubscriptionCancelled = errors.New("subscription cancelled")
)

// FailedCode is the coarse, user-visible reason a task failed.
type FailedCode string

const (
	// FailedCodeNone means the repository has no recorded failure.
	FailedCodeNone FailedCode = ""

	// FailedCodePermissions is recorded when the installation lacks access.
	FailedCodePermissions FailedCode = "PERMISSIONS_ERROR"

	// FailedCodeNotFound is recorded when the task's target no longer exists.
	FailedCodeNotFound FailedCode = "NOT_FOUND_ERROR"

	// FailedCodeConnection is recorded for everything else.
	FailedCodeConnection FailedCode = "CONNECTION_ERROR"
)

// TaskError annotates an error with the task that was executing.
type TaskError struct {
	Task Task
	Err  error
}

// NewTaskError wraps err with task context. A nil err yields nil.
func NewTaskError(task Task, err error) error {
	if err == nil {
		return nil
	}
	return &TaskError{Task: task, Err: err}
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s on repository %d: %v", e.Task.Type, e.Task.RepositoryID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err terminates a task without retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNotFound)
}

// ClassifyFailure maps an error to the code stored on a failed repository.
func ClassifyFailure(err error) FailedCode {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return FailedCodePermissions
	case errors.Is(err, ErrNotFound):
		return FailedCodeNotFound
	default:
		return FailedCodeConnection
	}
}

// RetryAfterError is implemented by errors that know when a retry can succeed.
type RetryAfterError interface {
	error
	RetryAfter() time.Time
}
