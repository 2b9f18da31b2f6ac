package services

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

const (
	// DefaultRateLimitThreshold is the used-budget percentage that defers work.
	DefaultRateLimitThreshold = 50.0

	// DefaultRateLimitMinDelay is the shortest deferral, used when the
	// provider reports a reset time that already passed.
	DefaultRateLimitMinDelay = 10 * time.Minute
)

// RateLimitGateConfig configures the rate limiter gate.
type RateLimitGateConfig struct {
	// Queues lists the queue names the gate applies to.
	Queues           []string
	ThresholdPercent float64
	MinDelay         time.Duration
}

// RateLimitGate defers queue work while the provider budget is nearly spent.
type RateLimitGate struct {
	source driven.RateLimitSource
	queues map[string]struct{}
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	threshold float64
	minDelay  time.Duration
}

// NewRateLimitGate creates a gate. A nil source disables it.
func NewRateLimitGate(source driven.RateLimitSource, cfg RateLimitGateConfig, logger *zap.Logger) *RateLimitGate {
	queues := make(map[string]struct{}, len(cfg.Queues))
	for _, q := range cfg.Queues {
		queues[q] = struct{}{}
	}
	g := &RateLimitGate{
		source: source,
		queues: queues,
		logger: logger,
		now:    time.Now,
	}
	g.SetLimits(cfg.ThresholdPercent, cfg.MinDelay)
	return g
}

// SetLimits replaces the threshold and minimum delay. It is safe to call
// while the gate is in use, e.g. from a config reload.
func (g *RateLimitGate) SetLimits(thresholdPercent float64, minDelay time.Duration) {
	if thresholdPercent <= 0 || thresholdPercent > 100 {
		thresholdPercent = DefaultRateLimitThreshold
	}
	if minDelay <= 0 {
		minDelay = DefaultRateLimitMinDelay
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threshold = thresholdPercent
	g.minDelay = minDelay
}

// Limits returns the current threshold and minimum delay.
func (g *RateLimitGate) Limits() (float64, time.Duration) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold, g.minDelay
}

// CheckAndMaybeDefer decides whether a message on queueName should be
// deferred. Any failure to read the budget lets the work through.
func (g *RateLimitGate) CheckAndMaybeDefer(ctx context.Context, queueName string, inst domain.InstallationContext) domain.RateLimitDecision {
	if g == nil || g.source == nil {
		return domain.RateLimitDecision{}
	}
	if _, ok := g.queues[queueName]; !ok {
		return domain.RateLimitDecision{}
	}

	status, err := g.source.RateLimit(ctx, inst)
	if err != nil || status == nil {
		g.logger.Warn("rate limit check failed, continuing",
			zap.Int64("installation_id", inst.InstallationID),
			zap.Error(err),
		)
		return domain.RateLimitDecision{}
	}

	threshold, minDelay := g.Limits()
	if status.Core.UsedPercent() < threshold && status.GraphQL.UsedPercent() < threshold {
		return domain.RateLimitDecision{}
	}

	reset := status.Core.Reset
	if status.GraphQL.Reset.After(reset) {
		reset = status.GraphQL.Reset
	}
	delay := reset.Sub(g.now())
	if delay < minDelay {
		delay = minDelay
	}

	decision := domain.RateLimitDecision{
		Exceeded:       true,
		ResetInSeconds: int(math.Ceil(delay.Seconds())),
	}
	g.logger.Info("rate limit threshold reached, deferring",
		zap.Int64("installation_id", inst.InstallationID),
		zap.Int("core_remaining", status.Core.Remaining),
		zap.Int("graphql_remaining", status.GraphQL.Remaining),
		zap.Int("reset_in_seconds", decision.ResetInSeconds),
	)
	return decision
}
