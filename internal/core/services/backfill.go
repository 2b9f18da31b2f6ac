package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driving"
)

// Ensure BackfillService implements the interface.
var _ driving.BackfillService = (*BackfillService)(nil)

// BackfillService starts, resets and reports subscription backfills.
type BackfillService struct {
	subs          driven.SubscriptionStore
	repos         driven.RepoSyncStateStore
	queue         driven.Queue
	queueName     string
	securityTasks bool
	logger        *zap.Logger
	now           func() time.Time
}

// NewBackfillService creates a backfill service that enqueues on queueName.
func NewBackfillService(
	subs driven.SubscriptionStore,
	repos driven.RepoSyncStateStore,
	queue driven.Queue,
	queueName string,
	securityTasks bool,
	logger *zap.Logger,
) *BackfillService {
	return &BackfillService{
		subs:          subs,
		repos:         repos,
		queue:         queue,
		queueName:     queueName,
		securityTasks: securityTasks,
		logger:        logger,
		now:           time.Now,
	}
}

// AddSubscription registers a subscription that has never been synced.
func (s *BackfillService) AddSubscription(ctx context.Context, sub domain.Subscription) (*domain.Subscription, error) {
	if sub.JiraHost == "" || sub.GitHubInstallationID <= 0 {
		return nil, fmt.Errorf("%w: jira host and installation id are required", domain.ErrInvalidInput)
	}
	sub.SyncStatus = domain.SyncStatusNone
	sub.RepositoryStatus = domain.TaskStatusPending
	created, err := s.subs.Create(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return created, nil
}

// ListSubscriptions returns every subscription.
func (s *BackfillService) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return s.subs.List(ctx)
}

// StartBackfill resets progress for the sync type and enqueues the
// first message. A full sync rediscovers every repository from scratch;
// a partial sync resets only the targeted tasks of known repositories.
func (s *BackfillService) StartBackfill(ctx context.Context, subscriptionID int64, req domain.BackfillRequest) error {
	if req.SyncType == "" {
		req.SyncType = domain.SyncTypePartial
	}
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}

	isFirstSync := sub.SyncStatus == domain.SyncStatusNone
	sub.BackfillSince = domain.CalcBackfillSince(sub.BackfillSince, req.CommitsFromDate, req.SyncType, isFirstSync)

	switch req.SyncType {
	case domain.SyncTypeFull:
		if err := s.repos.DeleteAll(ctx, sub.ID); err != nil {
			return fmt.Errorf("clear repository states: %w", err)
		}
		sub.RepositoryStatus = domain.TaskStatusPending
		sub.RepositoryCursor = ""
		sub.TotalNumberOfRepos = 0
		sub.SyncedRepos = 0
	case domain.SyncTypePartial:
		if _, err := s.repos.ResetTasks(ctx, sub.ID, 0, req.TargetTasks, false); err != nil {
			return fmt.Errorf("reset tasks: %w", err)
		}
	default:
		return fmt.Errorf("%w: unknown sync type %q", domain.ErrInvalidInput, req.SyncType)
	}

	// Steps still queued for the previous run see the new epoch and stop.
	sub.Epoch++
	sub.SyncStatus = domain.SyncStatusPending
	if err := s.subs.Save(ctx, *sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	return s.enqueue(ctx, sub, req.SyncType, req.CommitsFromDate, req.TargetTasks)
}

// Resync puts tasks back to PENDING and runs a partial backfill for them.
func (s *BackfillService) Resync(ctx context.Context, subscriptionID int64, req domain.ResyncRequest) (int, error) {
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("get subscription: %w", err)
	}

	n, err := s.repos.ResetTasks(ctx, sub.ID, req.RepoID, req.TargetTasks, req.FailedOnly)
	if err != nil {
		return 0, fmt.Errorf("reset tasks: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	sub.Epoch++
	sub.SyncStatus = domain.SyncStatusPending
	if err := s.subs.Save(ctx, *sub); err != nil {
		return 0, fmt.Errorf("save subscription: %w", err)
	}
	if err := s.enqueue(ctx, sub, domain.SyncTypePartial, nil, req.TargetTasks); err != nil {
		return 0, err
	}

	s.logger.Info("resync requested",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("repository_id", req.RepoID),
		zap.Int("tasks_reset", n),
	)
	return n, nil
}

// Status reports per-repository progress.
func (s *BackfillService) Status(ctx context.Context, subscriptionID int64) (*domain.SyncReport, error) {
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	states, err := s.repos.List(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("list repository states: %w", err)
	}

	tasks := make([]domain.TaskType, 0, len(domain.RepoTaskOrder))
	for _, t := range domain.RepoTaskOrder {
		if t.IsSecurity() && !s.securityTasks {
			continue
		}
		tasks = append(tasks, t)
	}

	report := &domain.SyncReport{
		Subscription: *sub,
		Repos:        states,
		Tasks:        tasks,
	}
	for _, st := range states {
		if st.IsComplete(tasks) {
			report.Complete++
		}
		if st.HasFailures(tasks) {
			report.Failed++
		}
	}
	return report, nil
}

func (s *BackfillService) enqueue(
	ctx context.Context,
	sub *domain.Subscription,
	syncType domain.SyncType,
	commitsFrom *time.Time,
	targets []domain.TaskType,
) error {
	msg := domain.BackfillMessage{
		SubscriptionID:  sub.ID,
		InstallationID:  sub.GitHubInstallationID,
		JiraHost:        sub.JiraHost,
		SyncType:        syncType,
		CommitsFromDate: commitsFrom,
		TargetTasks:     targets,
		StartTime:       s.now().UTC(),
		GitHubAppConfig: sub.AppConfig(),
	}
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	id, err := s.queue.Send(ctx, s.queueName, body, 0)
	if err != nil {
		return fmt.Errorf("enqueue backfill: %w", err)
	}
	s.logger.Info("backfill enqueued",
		zap.Int64("subscription_id", sub.ID),
		zap.String("sync_type", string(syncType)),
		zap.String("message_id", id),
	)
	return nil
}
