package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

const testQueue = "backfill"

// --- Fakes for the provider side ---

type fetchCall struct {
	Task   domain.TaskType
	RepoID int64
	Cursor domain.Cursor
}

// fakeFetcher serves pages[type] non-empty pages of one edge each for
// every repository, then empty pages.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[domain.TaskType]int
	errs  map[domain.TaskType]error
	calls []fetchCall

	// onFetch runs before each page is served.
	onFetch func(task domain.Task)
}

var _ driven.PageFetcher = (*fakeFetcher)(nil)

func newFakeFetcher(pages map[domain.TaskType]int) *fakeFetcher {
	return &fakeFetcher{pages: pages, errs: make(map[domain.TaskType]error)}
}

func (f *fakeFetcher) StartCursor(_ domain.TaskType, pageSize int) domain.Cursor {
	return domain.NewPageCursor(pageSize, 1)
}

func (f *fakeFetcher) FetchPage(
	_ context.Context,
	task domain.Task,
	cursor domain.Cursor,
	_ int,
	_ domain.SyncMeta,
) (*domain.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Task: task.Type, RepoID: task.RepositoryID, Cursor: cursor})
	err := f.errs[task.Type]
	total := f.pages[task.Type]
	onFetch := f.onFetch
	f.mu.Unlock()

	if onFetch != nil {
		onFetch(task)
	}

	if err != nil {
		return nil, err
	}
	if cursor.PageNo > total {
		return &domain.Page{}, nil
	}
	id := fmt.Sprintf("%s-%d-%d", task.Type, task.RepositoryID, cursor.PageNo)
	return &domain.Page{
		Edges:   []domain.Edge{{Cursor: cursor.Next(), NodeID: id}},
		Payload: &domain.JiraPayload{Commits: []domain.JiraCommit{{ID: id}}},
	}, nil
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

// taskSequence returns the task types in the order they were first fetched.
func (f *fakeFetcher) taskSequence() []domain.TaskType {
	var seq []domain.TaskType
	for _, c := range f.Calls() {
		if len(seq) == 0 || seq[len(seq)-1] != c.Task {
			seq = append(seq, c.Task)
		}
	}
	return seq
}

type fakeLister struct {
	repos []domain.Repository
	err   error
	calls int

	// onList runs before each page is served, with the 1-based call number.
	onList func(call int)
}

var _ driven.RepositoryLister = (*fakeLister)(nil)

func (l *fakeLister) ListRepositories(
	_ context.Context,
	_ domain.InstallationContext,
	cursor domain.Cursor,
	pageSize int,
) (*domain.RepositoryPage, error) {
	l.calls++
	if l.onList != nil {
		l.onList(l.calls)
	}
	if l.err != nil {
		return nil, l.err
	}
	start := (cursor.PageNo - 1) * pageSize
	if start >= len(l.repos) {
		return &domain.RepositoryPage{}, nil
	}
	end := min(start+pageSize, len(l.repos))
	page := &domain.RepositoryPage{Repositories: l.repos[start:end]}
	for _, r := range page.Repositories {
		page.Edges = append(page.Edges, domain.Edge{Cursor: cursor.Next(), NodeID: r.FullName})
	}
	return page, nil
}

type submission struct {
	Host    string
	Payload *domain.JiraPayload
	Opts    domain.SubmitOptions
}

type fakeSubmitter struct {
	mu          sync.Mutex
	err         error
	submissions []submission
}

var _ driven.JiraSubmitter = (*fakeSubmitter)(nil)

func (s *fakeSubmitter) Submit(_ context.Context, host string, payload *domain.JiraPayload, opts domain.SubmitOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.submissions = append(s.submissions, submission{Host: host, Payload: payload, Opts: opts})
	return nil
}

type fakeRateSource struct {
	status *domain.RateLimitStatus
	err    error
	calls  int
}

var _ driven.RateLimitSource = (*fakeRateSource)(nil)

func (r *fakeRateSource) RateLimit(context.Context, domain.InstallationContext) (*domain.RateLimitStatus, error) {
	r.calls++
	return r.status, r.err
}

// --- Harness wiring the real services over the memory adapters ---

type harness struct {
	subs      *memory.SubscriptionStore
	repos     *memory.SyncStateStore
	queue     *memory.Queue
	cache     *memory.Cache
	lister    *fakeLister
	fetcher   *fakeFetcher
	submitter *fakeSubmitter
	scheduler *TaskScheduler
	consumer  *Consumer
	backfill  *BackfillService
}

func testRepos(n int) []domain.Repository {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repos := make([]domain.Repository, n)
	for i := range repos {
		id := int64(100 + i)
		repos[i] = domain.Repository{
			ID:        id,
			Name:      fmt.Sprintf("repo-%d", i),
			Owner:     "acme",
			FullName:  fmt.Sprintf("acme/repo-%d", i),
			UpdatedAt: base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return repos
}

func newHarness(t *testing.T, repos []domain.Repository, pages map[domain.TaskType]int) *harness {
	t.Helper()
	logger := zap.NewNop()

	h := &harness{
		repos:     memory.NewSyncStateStore(),
		queue:     memory.NewQueue(time.Minute, 3),
		cache:     memory.NewCache(),
		lister:    &fakeLister{repos: repos},
		fetcher:   newFakeFetcher(pages),
		submitter: &fakeSubmitter{},
	}
	h.subs = memory.NewSubscriptionStore(h.repos)

	discovery := NewDiscovery(h.lister, h.subs, h.repos, 2, logger)
	h.scheduler = NewTaskScheduler(h.subs, h.repos, h.fetcher, h.submitter, discovery,
		DefaultTaskSchedulerConfig(), logger)
	h.consumer = NewConsumer(
		h.queue,
		nil,
		NewDedupGuard(h.cache, 30*time.Second, logger),
		h.scheduler,
		NewErrorHandler(h.scheduler, DefaultRetryPolicy(), logger),
		logger,
	)
	h.backfill = NewBackfillService(h.subs, h.repos, h.queue, testQueue, false, logger)
	return h
}

func (h *harness) addSubscription(t *testing.T) *domain.Subscription {
	t.Helper()
	sub, err := h.backfill.AddSubscription(context.Background(), domain.Subscription{
		JiraHost:             "https://acme.atlassian.net",
		GitHubInstallationID: 42,
	})
	require.NoError(t, err)
	return sub
}

// drain delivers queued messages to the consumer until the queue is
// empty, applying each outcome the way the worker pool does. Retries
// are redelivered immediately.
func (h *harness) drain(t *testing.T, limit int) int {
	t.Helper()
	ctx := context.Background()
	for steps := 0; steps < limit; steps++ {
		qm, err := h.queue.Receive(ctx, testQueue)
		require.NoError(t, err)
		if qm == nil {
			return steps
		}
		out := h.consumer.Handle(ctx, *qm)
		if out.IsFailure && out.Retryable {
			require.NoError(t, h.queue.Retry(ctx, qm.ID, 0))
			continue
		}
		require.NoError(t, h.queue.Ack(ctx, qm.ID))
	}
	t.Fatalf("queue not drained after %d deliveries", limit)
	return limit
}

func coreTasks() []domain.TaskType {
	return []domain.TaskType{
		domain.TaskBranch,
		domain.TaskCommit,
		domain.TaskPull,
		domain.TaskBuild,
		domain.TaskDeployment,
	}
}

func testMessage(subID int64) domain.BackfillMessage {
	return domain.BackfillMessage{
		SubscriptionID: subID,
		InstallationID: 42,
		JiraHost:       "https://acme.atlassian.net",
		SyncType:       domain.SyncTypeFull,
		StartTime:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}
