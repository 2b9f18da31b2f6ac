package services

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// RetryPolicy computes exponential backoff delays:
// min(Max, Base * Multiplier^receiveCount).
type RetryPolicy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultRetryPolicy returns the backoff used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:       time.Minute,
		Multiplier: 3,
		Max:        15 * time.Minute,
	}
}

// DelaySec returns the backoff in whole seconds for a receive count.
// It never decreases as receiveCount grows and never exceeds Max.
func (p RetryPolicy) DelaySec(receiveCount int) int {
	maxSec := p.Max.Seconds()
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	if receiveCount < 0 {
		receiveCount = 0
	}
	d := p.Base.Seconds() * math.Pow(mult, float64(receiveCount))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > maxSec {
		d = maxSec
	}
	return int(math.Ceil(d))
}

// TaskFailer records terminal failures.
type TaskFailer interface {
	MarkTaskFailed(ctx context.Context, subscriptionID int64, task domain.Task, code domain.FailedCode) error
	MarkSubscriptionFailed(ctx context.Context, subscriptionID int64) error
}

// ErrorHandler turns a failed backfill step into a queue decision.
type ErrorHandler struct {
	failer TaskFailer
	policy RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewErrorHandler creates an error handler.
func NewErrorHandler(failer TaskFailer, policy RetryPolicy, logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		failer: failer,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Policy returns the retry policy.
func (h *ErrorHandler) Policy() RetryPolicy {
	return h.policy
}

// Handle classifies err and returns the message outcome. The second
// result is true when the failing task was closed and the backfill
// should continue with a fresh message.
//
//   - permission or not-found errors on a task fail the task, never retried
//   - any error on the last attempt fails the task (or the subscription
//     when no task is known) and acknowledges the message
//   - everything else is retried with backoff, or until the provider
//     rate limit resets when the error says so
func (h *ErrorHandler) Handle(ctx context.Context, err error, msg domain.BackfillMessage, qm domain.QueueMessage) (domain.Outcome, bool) {
	log := h.logger.With(
		zap.Int64("subscription_id", msg.SubscriptionID),
		zap.String("message_id", qm.ID),
		zap.Int("receive_count", qm.ReceiveCount),
		zap.Error(err),
	)

	var taskErr *domain.TaskError
	hasTask := errors.As(err, &taskErr)
	if hasTask {
		log = log.With(
			zap.String("task_type", string(taskErr.Task.Type)),
			zap.Int64("repository_id", taskErr.Task.RepositoryID),
		)
	}

	if hasTask && domain.IsPermanent(err) {
		return h.failTask(ctx, log, msg, taskErr.Task, domain.ClassifyFailure(err))
	}

	if qm.LastAttempt() {
		if hasTask {
			return h.failTask(ctx, log, msg, taskErr.Task, domain.ClassifyFailure(err))
		}
		if ferr := h.failer.MarkSubscriptionFailed(ctx, msg.SubscriptionID); ferr != nil {
			log.Error("marking subscription failed", zap.NamedError("mark_error", ferr))
			return domain.RetryAfter(h.policy.DelaySec(qm.ReceiveCount)), false
		}
		log.Error("backfill failed on last attempt")
		return domain.Ack(), false
	}

	delay := h.policy.DelaySec(qm.ReceiveCount)
	var retryable domain.RetryAfterError
	if errors.As(err, &retryable) {
		if until := int(math.Ceil(retryable.RetryAfter().Sub(h.now()).Seconds())); until > 0 {
			delay = until
		}
	}
	log.Warn("backfill step failed, retrying", zap.Int("retry_delay_sec", delay))
	return domain.RetryAfter(delay), false
}

func (h *ErrorHandler) failTask(
	ctx context.Context,
	log *zap.Logger,
	msg domain.BackfillMessage,
	task domain.Task,
	code domain.FailedCode,
) (domain.Outcome, bool) {
	if err := h.failer.MarkTaskFailed(ctx, msg.SubscriptionID, task, code); err != nil {
		log.Error("marking task failed", zap.NamedError("mark_error", err))
		return domain.RetryAfter(h.policy.DelaySec(0)), false
	}
	log.Warn("task failed", zap.String("failed_code", string(code)))
	return domain.Ack(), true
}
