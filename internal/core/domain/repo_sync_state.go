package domain

import "time"

// TaskProgress is the status and resumable cursor of one task.
type TaskProgress struct {
	Status TaskStatus
	Cursor string
}

// RepoSyncState tracks backfill progress for one repository of one subscription.
type RepoSyncState struct {
	SubscriptionID int64
	Repository     Repository
	Tasks          map[TaskType]TaskProgress
	FailedCode     FailedCode
	UpdatedAt      time.Time
}

// NewRepoSyncState creates a state with every repository task PENDING.
func NewRepoSyncState(subscriptionID int64, repo Repository) RepoSyncState {
	tasks := make(map[TaskType]TaskProgress, len(RepoTaskOrder))
	for _, t := range RepoTaskOrder {
		tasks[t] = TaskProgress{Status: TaskStatusPending}
	}
	return RepoSyncState{
		SubscriptionID: subscriptionID,
		Repository:     repo,
		Tasks:          tasks,
	}
}

// Progress returns the progress of a task. Tasks never recorded are PENDING.
func (s RepoSyncState) Progress(t TaskType) TaskProgress {
	if p, ok := s.Tasks[t]; ok {
		if p.Status == "" {
			p.Status = TaskStatusPending
		}
		return p
	}
	return TaskProgress{Status: TaskStatusPending}
}

// NextTask returns the first task in tasks that is still PENDING or ACTIVE.
func (s RepoSyncState) NextTask(tasks []TaskType) (Task, bool) {
	for _, t := range tasks {
		p := s.Progress(t)
		if p.Status.IsTerminal() {
			continue
		}
		return Task{
			Type:         t,
			RepositoryID: s.Repository.ID,
			Repository:   s.Repository,
			Cursor:       p.Cursor,
		}, true
	}
	return Task{}, false
}

// IsComplete reports whether every task in tasks is COMPLETE or FAILED.
// A FAILED task ends that task only and does not block the others.
func (s RepoSyncState) IsComplete(tasks []TaskType) bool {
	_, pending := s.NextTask(tasks)
	return !pending
}

// HasFailures reports whether any task in tasks is FAILED.
func (s RepoSyncState) HasFailures(tasks []TaskType) bool {
	for _, t := range tasks {
		if s.Progress(t).Status == TaskStatusFailed {
			return true
		}
	}
	return false
}
