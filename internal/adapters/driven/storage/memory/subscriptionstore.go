package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// Ensure SubscriptionStore implements the interface.
var _ driven.SubscriptionStore = (*SubscriptionStore)(nil)

// SubscriptionStore is an in-memory implementation of driven.SubscriptionStore.
type SubscriptionStore struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[int64]domain.Subscription
	states *SyncStateStore
}

// NewSubscriptionStore creates a new in-memory subscription store.
// Deleting a subscription also clears its repository states from states,
// which may be nil.
func NewSubscriptionStore(states *SyncStateStore) *SubscriptionStore {
	return &SubscriptionStore{
		subs:   make(map[int64]domain.Subscription),
		states: states,
	}
}

// Create stores a new subscription.
func (s *SubscriptionStore) Create(_ context.Context, sub domain.Subscription) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subs {
		if existing.JiraHost == sub.JiraHost && existing.GitHubInstallationID == sub.GitHubInstallationID {
			return nil, domain.ErrAlreadyExists
		}
	}

	s.nextID++
	now := time.Now()
	sub.ID = s.nextID
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.subs[sub.ID] = copySubscription(sub)
	out := copySubscription(sub)
	return &out, nil
}

// Get retrieves a subscription.
func (s *SubscriptionStore) Get(_ context.Context, id int64) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copySubscription(sub)
	return &out, nil
}

// List returns all subscriptions ordered by ID.
func (s *SubscriptionStore) List(_ context.Context) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, copySubscription(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save updates an existing subscription.
func (s *SubscriptionStore) Save(_ context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.subs[sub.ID]
	if !ok {
		return domain.ErrNotFound
	}
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now()
	s.subs[sub.ID] = copySubscription(sub)
	return nil
}

// UpdateSyncStatus sets only the sync status.
func (s *SubscriptionStore) UpdateSyncStatus(_ context.Context, id int64, status domain.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	sub.SyncStatus = status
	sub.UpdatedAt = time.Now()
	s.subs[id] = sub
	return nil
}

// ActivateSync moves a PENDING subscription at epoch to ACTIVE.
func (s *SubscriptionStore) ActivateSync(_ context.Context, id, epoch int64) error {
	return s.updateCurrent(id, epoch, func(sub *domain.Subscription) bool {
		if !sub.SyncStatus.IsRunnable() {
			return false
		}
		sub.SyncStatus = domain.SyncStatusActive
		return true
	})
}

// SaveDiscoveryProgress records discovery state while the subscription
// is runnable and at epoch.
func (s *SubscriptionStore) SaveDiscoveryProgress(
	_ context.Context,
	id, epoch int64,
	progress domain.DiscoveryProgress,
) error {
	return s.updateCurrent(id, epoch, func(sub *domain.Subscription) bool {
		if !sub.SyncStatus.IsRunnable() {
			return false
		}
		sub.RepositoryStatus = progress.Status
		sub.RepositoryCursor = progress.Cursor
		sub.TotalNumberOfRepos = progress.TotalRepos
		return true
	})
}

// CompleteSync moves an ACTIVE subscription at epoch to COMPLETE.
func (s *SubscriptionStore) CompleteSync(_ context.Context, id, epoch int64, syncedRepos, totalRepos int) error {
	return s.updateCurrent(id, epoch, func(sub *domain.Subscription) bool {
		if sub.SyncStatus != domain.SyncStatusActive {
			return false
		}
		sub.SyncStatus = domain.SyncStatusComplete
		sub.SyncedRepos = syncedRepos
		sub.TotalNumberOfRepos = totalRepos
		return true
	})
}

// updateCurrent applies fn to the subscription if it is still at epoch
// and fn accepts its state.
func (s *SubscriptionStore) updateCurrent(id, epoch int64, fn func(*domain.Subscription) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if sub.Epoch != epoch || !fn(&sub) {
		return domain.ErrSubscriptionCancelled
	}
	sub.UpdatedAt = time.Now()
	s.subs[id] = sub
	return nil
}

// Delete removes a subscription and its repository states.
func (s *SubscriptionStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
	if s.states != nil {
		return s.states.DeleteAll(ctx, id)
	}
	return nil
}

func copySubscription(sub domain.Subscription) domain.Subscription {
	if sub.BackfillSince != nil {
		t := *sub.BackfillSince
		sub.BackfillSince = &t
	}
	if sub.GitHubAppID != nil {
		id := *sub.GitHubAppID
		sub.GitHubAppID = &id
	}
	return sub
}
