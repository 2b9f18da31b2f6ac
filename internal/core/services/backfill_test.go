package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

// nextMessage pops and decodes the next queued backfill message.
func nextMessage(t *testing.T, h *harness) domain.BackfillMessage {
	t.Helper()
	qm, err := h.queue.Receive(context.Background(), testQueue)
	require.NoError(t, err)
	require.NotNil(t, qm, "expected a queued message")
	require.NoError(t, h.queue.Ack(context.Background(), qm.ID))
	msg, err := domain.DecodeBackfillMessage(qm.Body)
	require.NoError(t, err)
	return msg
}

func TestBackfillService_AddSubscription(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	_, err := h.backfill.AddSubscription(ctx, domain.Subscription{JiraHost: "https://acme.atlassian.net"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	sub := h.addSubscription(t)
	assert.Equal(t, domain.SyncStatusNone, sub.SyncStatus)
	assert.Equal(t, domain.TaskStatusPending, sub.RepositoryStatus)

	_, err = h.backfill.AddSubscription(ctx, domain.Subscription{
		JiraHost:             "https://acme.atlassian.net",
		GitHubInstallationID: 42,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	subs, err := h.backfill.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestBackfillService_StartBackfill_FirstSync(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	sub := h.addSubscription(t)

	req := domain.BackfillRequest{
		SyncType:        domain.SyncTypeFull,
		CommitsFromDate: date("2024-03-01"),
		TargetTasks:     []domain.TaskType{domain.TaskCommit},
	}
	require.NoError(t, h.backfill.StartBackfill(ctx, sub.ID, req))

	got, err := h.subs.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)
	assert.Equal(t, int64(1), got.Epoch)
	require.NotNil(t, got.BackfillSince)
	assert.Equal(t, *date("2024-03-01"), *got.BackfillSince)

	msg := nextMessage(t, h)
	assert.Equal(t, sub.ID, msg.SubscriptionID)
	assert.Equal(t, int64(42), msg.InstallationID)
	assert.Equal(t, "https://acme.atlassian.net", msg.JiraHost)
	assert.Equal(t, domain.SyncTypeFull, msg.SyncType)
	assert.Equal(t, []domain.TaskType{domain.TaskCommit}, msg.TargetTasks)
	assert.False(t, msg.StartTime.IsZero())
	assert.Nil(t, msg.GitHubAppConfig)
}

func TestBackfillService_StartBackfill_FullKeepsEarliestDate(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	sub := h.addSubscription(t)

	sub.SyncStatus = domain.SyncStatusComplete
	sub.BackfillSince = date("2024-01-01")
	sub.RepositoryStatus = domain.TaskStatusComplete
	sub.TotalNumberOfRepos = 3
	require.NoError(t, h.subs.Save(ctx, *sub))
	_, err := h.repos.Upsert(ctx, sub.ID, domain.Repository{ID: 1})
	require.NoError(t, err)

	t.Run("later date keeps the existing one", func(t *testing.T) {
		require.NoError(t, h.backfill.StartBackfill(ctx, sub.ID, domain.BackfillRequest{
			SyncType: domain.SyncTypeFull, CommitsFromDate: date("2024-05-01"),
		}))
		got, _ := h.subs.Get(ctx, sub.ID)
		assert.Equal(t, *date("2024-01-01"), *got.BackfillSince)
		assert.Equal(t, domain.TaskStatusPending, got.RepositoryStatus)
		assert.Zero(t, got.TotalNumberOfRepos)

		n, _ := h.repos.Count(ctx, sub.ID)
		assert.Zero(t, n, "full sync rediscovers from scratch")
		nextMessage(t, h)
	})

	t.Run("no date means all history", func(t *testing.T) {
		require.NoError(t, h.backfill.StartBackfill(ctx, sub.ID, domain.BackfillRequest{SyncType: domain.SyncTypeFull}))
		got, _ := h.subs.Get(ctx, sub.ID)
		assert.Nil(t, got.BackfillSince)
		nextMessage(t, h)
	})
}

func TestBackfillService_StartBackfill_Partial(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	sub := h.addSubscription(t)
	sub.SyncStatus = domain.SyncStatusComplete
	sub.BackfillSince = date("2024-01-01")
	sub.RepositoryStatus = domain.TaskStatusComplete
	require.NoError(t, h.subs.Save(ctx, *sub))

	_, err := h.repos.Upsert(ctx, sub.ID, domain.Repository{ID: 1})
	require.NoError(t, err)
	for _, task := range coreTasks() {
		require.NoError(t, h.repos.SaveTaskProgress(ctx, sub.ID, 1, task,
			domain.TaskProgress{Status: domain.TaskStatusComplete}))
	}

	require.NoError(t, h.backfill.StartBackfill(ctx, sub.ID, domain.BackfillRequest{
		CommitsFromDate: date("2023-01-01"),
		TargetTasks:     []domain.TaskType{domain.TaskBuild},
	}))

	got, _ := h.subs.Get(ctx, sub.ID)
	assert.Equal(t, *date("2024-01-01"), *got.BackfillSince, "partial sync leaves the date alone")
	assert.Equal(t, domain.TaskStatusComplete, got.RepositoryStatus)

	state, _ := h.repos.Get(ctx, sub.ID, 1)
	assert.Equal(t, domain.TaskStatusPending, state.Progress(domain.TaskBuild).Status)
	assert.Equal(t, domain.TaskStatusComplete, state.Progress(domain.TaskBranch).Status)

	msg := nextMessage(t, h)
	assert.Equal(t, domain.SyncTypePartial, msg.SyncType)
}

func TestBackfillService_StartBackfill_Errors(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	err := h.backfill.StartBackfill(ctx, 99, domain.BackfillRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	sub := h.addSubscription(t)
	err = h.backfill.StartBackfill(ctx, sub.ID, domain.BackfillRequest{SyncType: "sideways"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, h.queue.Len(testQueue))
}

func TestBackfillService_Resync(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	sub := h.addSubscription(t)
	for _, id := range []int64{1, 2} {
		_, err := h.repos.Upsert(ctx, sub.ID, domain.Repository{ID: id})
		require.NoError(t, err)
	}
	require.NoError(t, h.repos.SaveTaskProgress(ctx, sub.ID, 2, domain.TaskPull,
		domain.TaskProgress{Status: domain.TaskStatusFailed}))

	t.Run("failed only", func(t *testing.T) {
		n, err := h.backfill.Resync(ctx, sub.ID, domain.ResyncRequest{FailedOnly: true})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, _ := h.subs.Get(ctx, sub.ID)
		assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)
		assert.Equal(t, sub.Epoch+1, got.Epoch)
		assert.Equal(t, domain.SyncTypePartial, nextMessage(t, h).SyncType)
	})

	t.Run("nothing to reset enqueues nothing", func(t *testing.T) {
		n, err := h.backfill.Resync(ctx, sub.ID, domain.ResyncRequest{FailedOnly: true})
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, h.queue.Len(testQueue))
	})

	t.Run("one repository", func(t *testing.T) {
		n, err := h.backfill.Resync(ctx, sub.ID, domain.ResyncRequest{
			RepoID:      1,
			TargetTasks: []domain.TaskType{domain.TaskBranch, domain.TaskCommit},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		msg := nextMessage(t, h)
		assert.Equal(t, []domain.TaskType{domain.TaskBranch, domain.TaskCommit}, msg.TargetTasks)
	})
}

func TestBackfillService_Status(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	sub := h.addSubscription(t)
	for _, id := range []int64{1, 2, 3} {
		_, err := h.repos.Upsert(ctx, sub.ID, domain.Repository{ID: id})
		require.NoError(t, err)
	}
	require.NoError(t, h.repos.SaveTaskProgress(ctx, sub.ID, 2, domain.TaskBuild,
		domain.TaskProgress{Status: domain.TaskStatusFailed}))
	for _, id := range []int64{1, 2} {
		for _, task := range coreTasks() {
			require.NoError(t, h.repos.SaveTaskProgress(ctx, sub.ID, id, task,
				domain.TaskProgress{Status: domain.TaskStatusComplete}))
		}
	}

	report, err := h.backfill.Status(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, coreTasks(), report.Tasks)
	assert.Len(t, report.Repos, 3)
	assert.Equal(t, 2, report.Complete, "a failed task still finishes its repository")
	assert.Equal(t, 1, report.Failed)

	_, err = h.backfill.Status(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
