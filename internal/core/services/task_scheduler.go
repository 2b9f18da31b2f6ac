package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// StepResult tells the consumer what to do after a successful step.
type StepResult int

const (
	// StepDone means the subscription needs no further message.
	StepDone StepResult = iota

	// StepRequeue means a continuation message must be sent.
	StepRequeue
)

// FanOut holds per-task parallel page counts for one provider flavour.
type FanOut map[domain.TaskType]int

// TaskSchedulerConfig configures page sizes and fan-out.
type TaskSchedulerConfig struct {
	PageSizes        map[domain.TaskType]int
	DefaultPageSize  int
	CloudFanOut      FanOut
	EnterpriseFanOut FanOut
	SecurityTasks    bool
}

// DefaultTaskSchedulerConfig returns the page sizes and fan-out used
// when nothing is configured.
func DefaultTaskSchedulerConfig() TaskSchedulerConfig {
	return TaskSchedulerConfig{
		PageSizes: map[domain.TaskType]int{
			domain.TaskBranch:     20,
			domain.TaskCommit:     20,
			domain.TaskPull:       20,
			domain.TaskBuild:      20,
			domain.TaskDeployment: 20,
		},
		DefaultPageSize: 50,
		CloudFanOut: FanOut{
			domain.TaskPull:       2,
			domain.TaskBuild:      2,
			domain.TaskDeployment: 2,
		},
		EnterpriseFanOut: FanOut{},
	}
}

// PageSize returns the page size for a task type.
func (c TaskSchedulerConfig) PageSize(t domain.TaskType) int {
	if n := c.PageSizes[t]; n > 0 {
		return n
	}
	if c.DefaultPageSize > 0 {
		return c.DefaultPageSize
	}
	return domain.DefaultPerPage
}

// FanOutFor returns how many pages of a task are fetched per step.
func (c TaskSchedulerConfig) FanOutFor(enterprise bool, t domain.TaskType) int {
	table := c.CloudFanOut
	if enterprise {
		table = c.EnterpriseFanOut
	}
	if n := table[t]; n > 1 {
		return n
	}
	return 1
}

// TaskScheduler drives the per-subscription backfill state machine.
// Each call to ProcessNextTask advances exactly one task by one step
// (one page batch), completing exhausted tasks along the way.
type TaskScheduler struct {
	subs      driven.SubscriptionStore
	repos     driven.RepoSyncStateStore
	fetcher   driven.PageFetcher
	submitter driven.JiraSubmitter
	discovery *Discovery
	config    TaskSchedulerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskScheduler creates a task scheduler.
func NewTaskScheduler(
	subs driven.SubscriptionStore,
	repos driven.RepoSyncStateStore,
	fetcher driven.PageFetcher,
	submitter driven.JiraSubmitter,
	discovery *Discovery,
	config TaskSchedulerConfig,
	logger *zap.Logger,
) *TaskScheduler {
	return &TaskScheduler{
		subs:      subs,
		repos:     repos,
		fetcher:   fetcher,
		submitter: submitter,
		discovery: discovery,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// TaskTypes returns the repository tasks a message covers, in order.
func (s *TaskScheduler) TaskTypes(msg domain.BackfillMessage) []domain.TaskType {
	var out []domain.TaskType
	for _, t := range domain.RepoTaskOrder {
		if t.IsSecurity() && !s.config.SecurityTasks {
			continue
		}
		if msg.Wants(t) {
			out = append(out, t)
		}
	}
	return out
}

// ProcessNextTask runs the next step of a subscription's backfill.
// Errors carry task context as *domain.TaskError when a task was running.
func (s *TaskScheduler) ProcessNextTask(ctx context.Context, msg domain.BackfillMessage) (StepResult, error) {
	log := s.logger.With(zap.Int64("subscription_id", msg.SubscriptionID))

	sub, err := s.subs.Get(ctx, msg.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("subscription removed, stopping backfill")
		return StepDone, nil
	}
	if err != nil {
		return StepDone, fmt.Errorf("get subscription: %w", err)
	}
	if !sub.SyncStatus.IsRunnable() {
		log.Info("backfill cancelled", zap.String("sync_status", string(sub.SyncStatus)))
		return StepDone, nil
	}
	if sub.SyncStatus == domain.SyncStatusPending {
		err := s.subs.ActivateSync(ctx, sub.ID, sub.Epoch)
		if errors.Is(err, domain.ErrSubscriptionCancelled) {
			log.Info("backfill cancelled before activation")
			return StepDone, nil
		}
		if err != nil {
			return StepDone, fmt.Errorf("activate subscription: %w", err)
		}
		sub.SyncStatus = domain.SyncStatusActive
	}

	inst := msg.Installation()
	if !sub.RepositoryStatus.IsTerminal() {
		done, err := s.discovery.Step(ctx, sub, inst)
		if errors.Is(err, domain.ErrSubscriptionCancelled) {
			log.Info("backfill cancelled during discovery")
			return StepDone, nil
		}
		if err != nil {
			return StepDone, err
		}
		if !done {
			return StepRequeue, nil
		}
	}

	states, err := s.repos.List(ctx, sub.ID)
	if err != nil {
		return StepDone, fmt.Errorf("list repository states: %w", err)
	}

	meta := domain.SyncMeta{
		SubscriptionID: sub.ID,
		Installation:   inst,
		BackfillSince:  sub.BackfillSince,
	}
	tasks := s.TaskTypes(msg)

	for {
		idx, task, ok := nextTask(states, tasks)
		if !ok {
			return StepDone, s.completeSubscription(ctx, sub, states, tasks)
		}

		exhausted, err := s.runTask(ctx, sub, task, meta)
		if err != nil {
			return StepDone, domain.NewTaskError(task, err)
		}
		if !exhausted {
			return StepRequeue, nil
		}
		states[idx].Tasks[task.Type] = domain.TaskProgress{Status: domain.TaskStatusComplete}
	}
}

// nextTask picks the first unfinished task of the first unfinished
// repository, in store order then fixed task order.
func nextTask(states []domain.RepoSyncState, tasks []domain.TaskType) (int, domain.Task, bool) {
	for i := range states {
		if task, ok := states[i].NextTask(tasks); ok {
			if states[i].Tasks == nil {
				states[i].Tasks = make(map[domain.TaskType]domain.TaskProgress)
			}
			return i, task, true
		}
	}
	return 0, domain.Task{}, false
}

// runTask fetches one batch for a task and persists the result.
// It reports whether the task is now exhausted.
func (s *TaskScheduler) runTask(ctx context.Context, sub *domain.Subscription, task domain.Task, meta domain.SyncMeta) (bool, error) {
	log := s.logger.With(
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("repository_id", task.RepositoryID),
		zap.String("task_type", string(task.Type)),
	)

	cursor, err := domain.ParseCursor(task.Cursor)
	if err != nil {
		return false, err
	}
	pageSize := s.config.PageSize(task.Type)
	if cursor.IsZero() {
		cursor = s.fetcher.StartCursor(task.Type, pageSize)
		if err := s.repos.SaveTaskProgress(ctx, sub.ID, task.RepositoryID, task.Type, domain.TaskProgress{
			Status: domain.TaskStatusActive,
		}); err != nil {
			return false, fmt.Errorf("activate task: %w", err)
		}
	}

	fanOut := s.config.FanOutFor(meta.Installation.IsEnterprise(), task.Type)
	page, err := FetchPages(ctx, fanOut, cursor, func(ctx context.Context, c domain.Cursor) (*domain.Page, error) {
		size := pageSize
		if c.IsPaged() {
			size = c.PerPage
		}
		return s.fetcher.FetchPage(ctx, task, c, size, meta)
	})
	if err != nil {
		return false, fmt.Errorf("fetch %s page: %w", task.Type, err)
	}

	if page.Exhausted() {
		if err := s.MarkTaskComplete(ctx, sub.ID, task.RepositoryID, task.Type); err != nil {
			return false, err
		}
		log.Debug("task complete")
		return true, nil
	}

	// Ship before persisting the cursor: a crash in between re-sends
	// the same batch instead of losing it.
	if page.Payload != nil {
		opts := domain.SubmitOptions{
			InstallationID:   meta.Installation.InstallationID,
			UpdateSequenceID: s.now().UnixMilli(),
		}
		if err := s.submitter.Submit(ctx, sub.JiraHost, page.Payload, opts); err != nil {
			return false, fmt.Errorf("submit to jira: %w", err)
		}
	}

	next := page.NextCursor()
	if err := s.repos.SaveTaskProgress(ctx, sub.ID, task.RepositoryID, task.Type, domain.TaskProgress{
		Status: domain.TaskStatusActive,
		Cursor: next.String(),
	}); err != nil {
		return false, fmt.Errorf("save cursor: %w", err)
	}

	log.Debug("task page processed",
		zap.Int("edges", len(page.Edges)),
		zap.Int("entities", page.Payload.Len()),
		zap.String("cursor", next.String()),
	)
	return false, nil
}

// MarkTaskComplete marks a task COMPLETE and clears its cursor.
// Repeating it on a completed task changes nothing.
func (s *TaskScheduler) MarkTaskComplete(ctx context.Context, subscriptionID, repoID int64, t domain.TaskType) error {
	err := s.repos.SaveTaskProgress(ctx, subscriptionID, repoID, t, domain.TaskProgress{
		Status: domain.TaskStatusComplete,
	})
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// MarkTaskFailed marks a task FAILED and records the failure code. A
// failed discovery task fails the subscription's discovery only; the
// repositories already stored still run.
func (s *TaskScheduler) MarkTaskFailed(ctx context.Context, subscriptionID int64, task domain.Task, code domain.FailedCode) error {
	if task.Type == domain.TaskRepository {
		sub, err := s.subs.Get(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("get subscription: %w", err)
		}
		err = s.subs.SaveDiscoveryProgress(ctx, sub.ID, sub.Epoch, domain.DiscoveryProgress{
			Status:     domain.TaskStatusFailed,
			Cursor:     sub.RepositoryCursor,
			TotalRepos: sub.TotalNumberOfRepos,
		})
		if errors.Is(err, domain.ErrSubscriptionCancelled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fail discovery: %w", err)
		}
		return nil
	}

	err := s.repos.SaveTaskProgress(ctx, subscriptionID, task.RepositoryID, task.Type, domain.TaskProgress{
		Status: domain.TaskStatusFailed,
		Cursor: task.Cursor,
	})
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if err := s.repos.SetFailedCode(ctx, subscriptionID, task.RepositoryID, code); err != nil {
		return fmt.Errorf("set failed code: %w", err)
	}
	return nil
}

// MarkSubscriptionFailed stops a subscription whose failure could not
// be tied to a task.
func (s *TaskScheduler) MarkSubscriptionFailed(ctx context.Context, subscriptionID int64) error {
	if err := s.subs.UpdateSyncStatus(ctx, subscriptionID, domain.SyncStatusFailed); err != nil {
		return fmt.Errorf("fail subscription: %w", err)
	}
	return nil
}

func (s *TaskScheduler) completeSubscription(
	ctx context.Context,
	sub *domain.Subscription,
	states []domain.RepoSyncState,
	tasks []domain.TaskType,
) error {
	synced := 0
	for _, st := range states {
		if st.IsComplete(tasks) {
			synced++
		}
	}
	err := s.subs.CompleteSync(ctx, sub.ID, sub.Epoch, synced, len(states))
	if errors.Is(err, domain.ErrSubscriptionCancelled) {
		s.logger.Info("backfill cancelled before completion", zap.Int64("subscription_id", sub.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete subscription: %w", err)
	}
	sub.SyncStatus = domain.SyncStatusComplete
	sub.SyncedRepos = synced
	sub.TotalNumberOfRepos = len(states)
	s.logger.Info("backfill complete",
		zap.Int64("subscription_id", sub.ID),
		zap.Int("repos", len(states)),
	)
	return nil
}
