// Package worker runs the queue consumer loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driving"
)

// Defaults used when no option overrides them.
const (
	DefaultConcurrency  = 4
	DefaultPollInterval = time.Second
)

// Pool runs a fixed number of workers that each lease one message at a
// time, hand it to the handler and settle it with the queue.
type Pool struct {
	queue        driven.Queue
	queueName    string
	handler      driving.MessageHandler
	concurrency  int
	pollInterval time.Duration
	logger       *zap.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithConcurrency sets the number of workers.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPollInterval sets how long an idle worker waits before polling again.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool consuming queueName.
func NewPool(queue driven.Queue, queueName string, handler driving.MessageHandler, opts ...Option) *Pool {
	p := &Pool{
		queue:        queue,
		queueName:    queueName,
		handler:      handler,
		concurrency:  DefaultConcurrency,
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled. A message being handled when ctx
// is cancelled is left leased and becomes visible again after the
// queue's visibility timeout.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("starting workers",
		zap.String("queue", p.queueName),
		zap.Int("concurrency", p.concurrency),
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		worker := i
		g.Go(func() error {
			p.loop(ctx, worker)
			return nil
		})
	}
	err := g.Wait()

	p.logger.Info("workers stopped", zap.String("queue", p.queueName))
	return err
}

func (p *Pool) loop(ctx context.Context, worker int) {
	log := p.logger.With(zap.Int("worker", worker))
	for ctx.Err() == nil {
		processed, err := p.ProcessOne(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error("processing message", zap.Error(err))
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(p.pollInterval):
		}
	}
}

// ProcessOne leases and settles at most one message. It reports whether
// a message was received.
func (p *Pool) ProcessOne(ctx context.Context) (processed bool, err error) {
	msg, err := p.queue.Receive(ctx, p.queueName)
	if err != nil {
		return false, fmt.Errorf("receive: %w", err)
	}
	if msg == nil {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			processed = true
			err = fmt.Errorf("handler panicked on message %s: %v", msg.ID, r)
		}
	}()

	outcome := p.handler.Handle(ctx, *msg)
	return true, p.settle(ctx, msg, outcome)
}

func (p *Pool) settle(ctx context.Context, msg *domain.QueueMessage, outcome domain.Outcome) error {
	switch {
	case !outcome.IsFailure:
		if err := p.queue.Ack(ctx, msg.ID); err != nil {
			return fmt.Errorf("ack %s: %w", msg.ID, err)
		}
	case outcome.Retryable:
		delay := time.Duration(outcome.RetryDelaySec) * time.Second
		if err := p.queue.Retry(ctx, msg.ID, delay); err != nil {
			return fmt.Errorf("retry %s: %w", msg.ID, err)
		}
		p.logger.Debug("message scheduled for retry",
			zap.String("message_id", msg.ID),
			zap.Int("retry_delay_sec", outcome.RetryDelaySec),
		)
	default:
		if err := p.queue.DeadLetter(ctx, msg.ID, "non-retryable failure"); err != nil {
			return fmt.Errorf("dead-letter %s: %w", msg.ID, err)
		}
		p.logger.Warn("message dead-lettered", zap.String("message_id", msg.ID))
	}
	return nil
}
