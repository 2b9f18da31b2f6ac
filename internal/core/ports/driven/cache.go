package driven

import (
	"context"
	"time"
)

// Cache is a shared store of short-lived keys. Entries are throwaway
// and never a source of truth.
type Cache interface {
	// SetNX stores the key only if it is absent or expired.
	// Returns true if the key was stored.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value of a live key.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes a key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// PurgeExpired removes expired keys and returns how many were removed.
	PurgeExpired(ctx context.Context) (int, error)
}
