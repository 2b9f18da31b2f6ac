package domain

import (
	"fmt"
	"time"
)

// SyncType selects between a full backfill and a partial resync.
type SyncType string

const (
	SyncTypeFull    SyncType = "full"
	SyncTypePartial SyncType = "partial"
)

// ParseSyncType validates a sync type name. Empty means full.
func ParseSyncType(s string) (SyncType, error) {
	switch t := SyncType(s); t {
	case "":
		return SyncTypeFull, nil
	case SyncTypeFull, SyncTypePartial:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown sync type %q", ErrInvalidInput, s)
	}
}

// ParseDate parses a backfill boundary given as YYYY-MM-DD or as an
// RFC 3339 timestamp, returning it in UTC.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is neither YYYY-MM-DD nor RFC 3339", ErrInvalidInput, s)
	}
	return t.UTC(), nil
}

// CalcBackfillSince decides the boundary before which nothing is synced.
//
// Partial syncs (and legacy messages without a sync type) keep the
// existing boundary. The first sync of a subscription takes the
// requested boundary verbatim. Later full syncs only ever widen it:
// an unset boundary stays unset, an unset request clears it, and
// otherwise the earlier date wins.
func CalcBackfillSince(existing, requested *time.Time, syncType SyncType, isFirstSync bool) *time.Time {
	if syncType != SyncTypeFull {
		return existing
	}
	if isFirstSync {
		return requested
	}
	if existing == nil || requested == nil {
		return nil
	}
	if requested.Before(*existing) {
		return requested
	}
	return existing
}
