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

// BackfillStepper advances a subscription's backfill by one step.
type BackfillStepper interface {
	ProcessNextTask(ctx context.Context, msg domain.BackfillMessage) (StepResult, error)
}

// Consumer handles backfill queue messages.
type Consumer struct {
	queue   driven.Queue
	gate    *RateLimitGate
	dedup   *DedupGuard
	stepper BackfillStepper
	errors  *ErrorHandler
	logger  *zap.Logger
}

var _ driving.MessageHandler = (*Consumer)(nil)

// NewConsumer creates a consumer. gate and dedup may be nil.
func NewConsumer(
	queue driven.Queue,
	gate *RateLimitGate,
	dedup *DedupGuard,
	stepper BackfillStepper,
	errHandler *ErrorHandler,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		queue:   queue,
		gate:    gate,
		dedup:   dedup,
		stepper: stepper,
		errors:  errHandler,
		logger:  logger,
	}
}

// Handle processes one delivery.
func (c *Consumer) Handle(ctx context.Context, qm domain.QueueMessage) domain.Outcome {
	log := c.logger.With(
		zap.String("queue", qm.Queue),
		zap.String("message_id", qm.ID),
		zap.Int("receive_count", qm.ReceiveCount),
	)

	msg, err := domain.DecodeBackfillMessage(qm.Body)
	if err != nil {
		log.Error("dropping malformed message", zap.Error(err))
		return domain.Ack()
	}
	log = log.With(zap.Int64("subscription_id", msg.SubscriptionID))

	claimed, release := c.dedup.Claim(ctx, msg, qm.ID)
	if !claimed {
		log.Info("duplicate delivery in progress elsewhere, skipping")
		return domain.Ack()
	}
	defer release()

	if decision := c.gate.CheckAndMaybeDefer(ctx, qm.Queue, msg.Installation()); decision.Exceeded {
		release()
		delay := time.Duration(decision.ResetInSeconds) * time.Second
		if err := c.send(ctx, qm.Queue, msg, delay); err != nil {
			log.Error("deferring message", zap.Error(err))
			return domain.RetryAfter(decision.ResetInSeconds)
		}
		return domain.Ack()
	}

	result, err := c.stepper.ProcessNextTask(ctx, msg)
	if err != nil {
		outcome, cont := c.errors.Handle(ctx, err, msg, qm)
		if cont {
			release()
			if err := c.send(ctx, qm.Queue, msg, 0); err != nil {
				log.Error("sending continuation", zap.Error(err))
				return domain.RetryAfter(c.errors.Policy().DelaySec(qm.ReceiveCount))
			}
		}
		return outcome
	}

	if result == StepRequeue {
		// The claim must be gone before the continuation can be seen,
		// otherwise the continuation would be skipped as a duplicate.
		release()
		if err := c.send(ctx, qm.Queue, msg, 0); err != nil {
			log.Error("sending continuation", zap.Error(err))
			return domain.RetryAfter(c.errors.Policy().DelaySec(qm.ReceiveCount))
		}
	}
	return domain.Ack()
}

func (c *Consumer) send(ctx context.Context, queue string, msg domain.BackfillMessage, delay time.Duration) error {
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := c.queue.Send(ctx, queue, body, delay); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
