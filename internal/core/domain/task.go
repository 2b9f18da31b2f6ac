package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskType identifies one kind of data a repository backfill walks through.
type TaskType string

const (
	// TaskRepository is the discovery task. It runs once per subscription.
	TaskRepository TaskType = "repository"

	TaskBranch              TaskType = "branch"
	TaskCommit              TaskType = "commit"
	TaskPull                TaskType = "pull"
	TaskBuild               TaskType = "build"
	TaskDeployment          TaskType = "deployment"
	TaskDependabotAlert     TaskType = "dependabotAlert"
	TaskSecretScanningAlert TaskType = "secretScanningAlert"
	TaskCodeScanningAlert   TaskType = "codeScanningAlert"
)

// RepoTaskOrder is the fixed order in which per-repository tasks run.
// Workers racing on the same subscription rely on it to pick the same step.
var RepoTaskOrder = []TaskType{
	TaskBranch,
	TaskCommit,
	TaskPull,
	TaskBuild,
	TaskDeployment,
	TaskDependabotAlert,
	TaskSecretScanningAlert,
	TaskCodeScanningAlert,
}

// IsSecurity reports whether the task reads security-scanning alerts.
func (t TaskType) IsSecurity() bool {
	switch t {
	case TaskDependabotAlert, TaskSecretScanningAlert, TaskCodeScanningAlert:
		return true
	default:
		return false
	}
}

// ParseTaskType validates a task type name.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.TrimSpace(s))
	if t == TaskRepository {
		return t, nil
	}
	for _, known := range RepoTaskOrder {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown task type %q", ErrInvalidInput, s)
}

// ParseTaskTypes parses a comma separated list of task types.
// An empty string yields nil, meaning all task types.
func ParseTaskTypes(s string) ([]TaskType, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []TaskType
	for _, part := range strings.Split(s, ",") {
		t, err := ParseTaskType(part)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// TaskStatus is the state of one task on one repository.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "PENDING"
	TaskStatusActive   TaskStatus = "ACTIVE"
	TaskStatusComplete TaskStatus = "COMPLETE"
	TaskStatusFailed   TaskStatus = "FAILED"
)

// rank orders statuses so transitions can only move forward.
func (s TaskStatus) rank() int {
	switch s {
	case TaskStatusActive:
		return 1
	case TaskStatusComplete, TaskStatusFailed:
		return 2
	default:
		return 0
	}
}

// IsTerminal reports whether the status is COMPLETE or FAILED.
func (s TaskStatus) IsTerminal() bool {
	return s.rank() == 2
}

// CanTransition reports whether moving from s to next respects the
// PENDING -> ACTIVE -> COMPLETE|FAILED order. Re-entering the same
// status is allowed so redelivered messages stay harmless.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Repository identifies a GitHub repository inside an installation.
type Repository struct {
	ID        int64
	Name      string
	Owner     string
	FullName  string
	URL       string
	UpdatedAt time.Time
}

// Task is the next unit of backfill work. It is derived from
// RepoSyncState at schedule time and never persisted on its own.
type Task struct {
	Type         TaskType
	RepositoryID int64
	Repository   Repository
	Cursor       string
}
