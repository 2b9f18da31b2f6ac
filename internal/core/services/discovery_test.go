package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

func TestDiscovery_Step(t *testing.T) {
	ctx := context.Background()
	states := memory.NewSyncStateStore()
	subs := memory.NewSubscriptionStore(states)
	lister := &fakeLister{repos: testRepos(3)}
	d := NewDiscovery(lister, subs, states, 2, zap.NewNop())

	sub, err := subs.Create(ctx, domain.Subscription{
		JiraHost:             "h",
		GitHubInstallationID: 1,
		SyncStatus:           domain.SyncStatusActive,
	})
	require.NoError(t, err)
	inst := domain.InstallationContext{InstallationID: 1, JiraHost: "h"}

	done, err := d.Step(ctx, sub, inst)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, domain.TaskStatusActive, sub.RepositoryStatus)
	assert.Equal(t, `{"perPage":2,"pageNo":2}`, sub.RepositoryCursor)
	assert.Equal(t, 2, sub.TotalNumberOfRepos)

	stored, err := subs.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.RepositoryCursor, stored.RepositoryCursor)

	done, err = d.Step(ctx, sub, inst)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 3, sub.TotalNumberOfRepos)

	done, err = d.Step(ctx, sub, inst)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, domain.TaskStatusComplete, sub.RepositoryStatus)
	assert.Empty(t, sub.RepositoryCursor)
	assert.Equal(t, 3, lister.calls)

	n, err := states.Count(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDiscovery_Step_ListError(t *testing.T) {
	ctx := context.Background()
	states := memory.NewSyncStateStore()
	subs := memory.NewSubscriptionStore(states)
	lister := &fakeLister{err: domain.ErrPermissionDenied}
	d := NewDiscovery(lister, subs, states, 0, zap.NewNop())

	sub, err := subs.Create(ctx, domain.Subscription{JiraHost: "h", GitHubInstallationID: 1})
	require.NoError(t, err)

	done, err := d.Step(ctx, sub, domain.InstallationContext{InstallationID: 1})
	assert.False(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	var taskErr *domain.TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, domain.TaskRepository, taskErr.Task.Type)
	assert.Empty(t, sub.RepositoryCursor)
}

func TestDiscovery_Step_RejectedAfterRestart(t *testing.T) {
	ctx := context.Background()
	states := memory.NewSyncStateStore()
	subs := memory.NewSubscriptionStore(states)
	lister := &fakeLister{repos: testRepos(3)}
	d := NewDiscovery(lister, subs, states, 2, zap.NewNop())

	sub, err := subs.Create(ctx, domain.Subscription{
		JiraHost:             "h",
		GitHubInstallationID: 1,
		SyncStatus:           domain.SyncStatusActive,
	})
	require.NoError(t, err)

	lister.onList = func(int) {
		restarted := *sub
		restarted.Epoch++
		restarted.SyncStatus = domain.SyncStatusPending
		require.NoError(t, subs.Save(ctx, restarted))
	}

	_, err = d.Step(ctx, sub, domain.InstallationContext{InstallationID: 1})
	require.ErrorIs(t, err, domain.ErrSubscriptionCancelled)
	assert.Empty(t, sub.RepositoryCursor)

	stored, err := subs.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RepositoryCursor)
	assert.Equal(t, int64(1), stored.Epoch)
}

func TestDiscovery_Step_InvalidCursor(t *testing.T) {
	ctx := context.Background()
	states := memory.NewSyncStateStore()
	subs := memory.NewSubscriptionStore(states)
	lister := &fakeLister{repos: testRepos(1)}
	d := NewDiscovery(lister, subs, states, 10, zap.NewNop())

	sub := &domain.Subscription{ID: 1, RepositoryCursor: `{"perPage":0,"pageNo":1}`}
	_, err := d.Step(ctx, sub, domain.InstallationContext{})
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)
	assert.Zero(t, lister.calls)
}
