package cli

import (
	"context"
	"sync"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driving"
)

// mockBackfillService records calls and returns canned results.
type mockBackfillService struct {
	mu sync.Mutex

	subs      []domain.Subscription
	report    *domain.SyncReport
	resetN    int
	err       error
	added     *domain.Subscription
	backfills map[int64]domain.BackfillRequest
	resyncs   map[int64]domain.ResyncRequest
}

var _ driving.BackfillService = (*mockBackfillService)(nil)

func newMockBackfillService() *mockBackfillService {
	return &mockBackfillService{
		backfills: make(map[int64]domain.BackfillRequest),
		resyncs:   make(map[int64]domain.ResyncRequest),
	}
}

func (m *mockBackfillService) AddSubscription(_ context.Context, sub domain.Subscription) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	sub.ID = int64(len(m.subs) + 1)
	m.subs = append(m.subs, sub)
	m.added = &sub
	return &sub, nil
}

func (m *mockBackfillService) ListSubscriptions(_ context.Context) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs, m.err
}

func (m *mockBackfillService) StartBackfill(_ context.Context, id int64, req domain.BackfillRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.backfills[id] = req
	return nil
}

func (m *mockBackfillService) Resync(_ context.Context, id int64, req domain.ResyncRequest) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.resyncs[id] = req
	return m.resetN, nil
}

func (m *mockBackfillService) Status(_ context.Context, _ int64) (*domain.SyncReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report, m.err
}

// setupBackfillTest installs a mock service and resets command flags
// when the test ends.
func setupBackfillTest() (*mockBackfillService, func()) {
	oldService := backfillService
	mock := newMockBackfillService()
	backfillService = mock
	return mock, func() {
		backfillService = oldService
		resetFlags()
	}
}

func resetFlags() {
	subJiraHost, subInstallationID, subAppID, subGitHubURL = "", 0, 0, ""
	backfillPartial, backfillSince, backfillTasks = false, "", ""
	resyncRepo, resyncTasks, resyncFailedOnly = 0, "", false
}
