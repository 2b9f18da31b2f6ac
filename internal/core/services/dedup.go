package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// dedupKeyPrefix namespaces dedup keys in the shared cache.
const dedupKeyPrefix = "backfill:dedup:"

// DedupGuard short-circuits a delivery while a functionally identical
// message is already being processed elsewhere. It is best effort:
// cache failures let the message through.
type DedupGuard struct {
	cache  driven.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewDedupGuard creates a guard whose claims expire after ttl, normally
// half the queue's visibility timeout.
func NewDedupGuard(cache driven.Cache, ttl time.Duration, logger *zap.Logger) *DedupGuard {
	return &DedupGuard{cache: cache, ttl: ttl, logger: logger}
}

// Claim records the message fingerprint under owner. It returns false
// when another delivery holds the claim. The release func drops the
// claim if owner still holds it and is safe to call more than once.
func (g *DedupGuard) Claim(ctx context.Context, msg domain.BackfillMessage, owner string) (bool, func()) {
	noop := func() {}
	if g == nil || g.cache == nil {
		return true, noop
	}

	key := dedupKeyPrefix + msg.Fingerprint()
	ok, err := g.cache.SetNX(ctx, key, owner, g.ttl)
	if err != nil {
		g.logger.Warn("dedup claim failed, continuing", zap.Error(err))
		return true, noop
	}
	if !ok {
		return false, noop
	}

	released := false
	return true, func() {
		if released {
			return
		}
		released = true
		g.release(context.WithoutCancel(ctx), key, owner)
	}
}

func (g *DedupGuard) release(ctx context.Context, key, owner string) {
	current, ok, err := g.cache.Get(ctx, key)
	if err != nil || !ok || current != owner {
		return
	}
	if err := g.cache.Delete(ctx, key); err != nil {
		g.logger.Warn("dedup release failed", zap.String("key", key), zap.Error(err))
	}
}
