package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// Ensure SyncStateStore implements the interface.
var _ driven.RepoSyncStateStore = (*SyncStateStore)(nil)

type repoKey struct {
	subscriptionID int64
	repoID         int64
}

// SyncStateStore is an in-memory implementation of driven.RepoSyncStateStore.
type SyncStateStore struct {
	mu     sync.RWMutex
	states map[repoKey]domain.RepoSyncState
}

// NewSyncStateStore creates a new in-memory repository state store.
func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{
		states: make(map[repoKey]domain.RepoSyncState),
	}
}

// Upsert records a discovered repository.
func (s *SyncStateStore) Upsert(_ context.Context, subscriptionID int64, repo domain.Repository) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := repoKey{subscriptionID, repo.ID}
	if existing, ok := s.states[key]; ok {
		existing.Repository = repo
		existing.UpdatedAt = time.Now()
		s.states[key] = existing
		return false, nil
	}

	state := domain.NewRepoSyncState(subscriptionID, repo)
	state.UpdatedAt = time.Now()
	s.states[key] = state
	return true, nil
}

// Get returns one repository's state.
func (s *SyncStateStore) Get(_ context.Context, subscriptionID, repoID int64) (*domain.RepoSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[repoKey{subscriptionID, repoID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copyState(state)
	return &out, nil
}

// List returns every repository of a subscription in scheduling order.
func (s *SyncStateStore) List(_ context.Context, subscriptionID int64) ([]domain.RepoSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RepoSyncState //nolint:prealloc // size unknown until filtered
	for key, state := range s.states {
		if key.subscriptionID == subscriptionID {
			out = append(out, copyState(state))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Repository, out[j].Repository
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Count returns the number of repositories of a subscription.
func (s *SyncStateStore) Count(_ context.Context, subscriptionID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.states {
		if key.subscriptionID == subscriptionID {
			n++
		}
	}
	return n, nil
}

// SaveTaskProgress records a task's status and cursor, ignoring backward moves.
func (s *SyncStateStore) SaveTaskProgress(
	_ context.Context,
	subscriptionID, repoID int64,
	task domain.TaskType,
	p domain.TaskProgress,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := repoKey{subscriptionID, repoID}
	state, ok := s.states[key]
	if !ok {
		return domain.ErrNotFound
	}
	if !state.Progress(task).Status.CanTransition(p.Status) {
		return nil
	}
	state.Tasks[task] = p
	state.UpdatedAt = time.Now()
	s.states[key] = state
	return nil
}

// SetFailedCode records the failure reason of a repository.
func (s *SyncStateStore) SetFailedCode(_ context.Context, subscriptionID, repoID int64, code domain.FailedCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := repoKey{subscriptionID, repoID}
	state, ok := s.states[key]
	if !ok {
		return domain.ErrNotFound
	}
	state.FailedCode = code
	s.states[key] = state
	return nil
}

// ResetTasks puts matching tasks back to PENDING.
func (s *SyncStateStore) ResetTasks(
	_ context.Context,
	subscriptionID, repoID int64,
	tasks []domain.TaskType,
	failedOnly bool,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tasks) == 0 {
		tasks = domain.RepoTaskOrder
	}
	reset := 0
	for key, state := range s.states {
		if key.subscriptionID != subscriptionID || (repoID != 0 && key.repoID != repoID) {
			continue
		}
		changed := false
		for _, t := range tasks {
			if failedOnly && state.Progress(t).Status != domain.TaskStatusFailed {
				continue
			}
			state.Tasks[t] = domain.TaskProgress{Status: domain.TaskStatusPending}
			reset++
			changed = true
		}
		if changed {
			state.FailedCode = domain.FailedCodeNone
			state.UpdatedAt = time.Now()
			s.states[key] = state
		}
	}
	return reset, nil
}

// DeleteAll removes every repository state of a subscription.
func (s *SyncStateStore) DeleteAll(_ context.Context, subscriptionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.states {
		if key.subscriptionID == subscriptionID {
			delete(s.states, key)
		}
	}
	return nil
}

func copyState(state domain.RepoSyncState) domain.RepoSyncState {
	tasks := make(map[domain.TaskType]domain.TaskProgress, len(state.Tasks))
	for k, v := range state.Tasks {
		tasks[k] = v
	}
	state.Tasks = tasks
	return state
}
