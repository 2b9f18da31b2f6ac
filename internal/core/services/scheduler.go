package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driving"
)

const (
	// CachePurgeSchedule runs expired cache key cleanup.
	CachePurgeSchedule = "@every 1m"

	// DeadLetterPurgeSchedule runs dead-letter cleanup.
	DeadLetterPurgeSchedule = "@hourly"

	// DeadLetterRetention is how long dead-lettered messages are kept.
	DeadLetterRetention = 7 * 24 * time.Hour
)

// Scheduler runs periodic maintenance for the shared cache and queue.
// It has no external control API beyond Start and Stop.
type Scheduler struct {
	cache  driven.Cache
	queue  driven.Queue
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

var _ driving.Scheduler = (*Scheduler)(nil)

// NewScheduler creates a maintenance scheduler. cache may be nil.
func NewScheduler(cache driven.Cache, queue driven.Queue, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cache:  cache,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the maintenance jobs and starts the cron runner.
// It returns immediately; jobs run in the background until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil // Already running
	}

	c := cron.New()
	if s.cache != nil {
		if _, err := c.AddFunc(CachePurgeSchedule, func() { s.PurgeCache(ctx) }); err != nil {
			return fmt.Errorf("schedule cache purge: %w", err)
		}
	}
	if _, err := c.AddFunc(DeadLetterPurgeSchedule, func() { s.PurgeDeadLetters(ctx) }); err != nil {
		return fmt.Errorf("schedule dead-letter purge: %w", err)
	}

	c.Start()
	s.cron = c
	s.running = true
	s.logger.Info("maintenance scheduler started")
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	return nil
}

// PurgeCache removes expired cache keys.
func (s *Scheduler) PurgeCache(ctx context.Context) {
	n, err := s.cache.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("cache purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("purged expired cache keys", zap.Int("count", n))
	}
}

// PurgeDeadLetters removes dead-lettered messages past retention.
func (s *Scheduler) PurgeDeadLetters(ctx context.Context) {
	n, err := s.queue.PurgeDead(ctx, s.now().Add(-DeadLetterRetention))
	if err != nil {
		s.logger.Warn("dead-letter purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("purged dead-lettered messages", zap.Int("count", n))
	}
}
