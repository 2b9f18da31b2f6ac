package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// PageFetchFunc fetches the single page at cursor.
type PageFetchFunc func(ctx context.Context, cursor domain.Cursor) (*domain.Page, error)

// FetchPages fetches n consecutive pages starting at start concurrently
// and merges them in page order.
//
// Edges are concatenated in cursor order and payloads merged per entity
// slice. The first exhausted page ends the merged result: later pages
// are dropped even if they already returned, so the persisted cursor
// never skips a gap. Any page error fails the whole batch.
//
// With n <= 1, or a cursor that cannot be advanced locally, FetchPages
// is exactly one call to fetch.
func FetchPages(ctx context.Context, n int, start domain.Cursor, fetch PageFetchFunc) (*domain.Page, error) {
	if n <= 1 || !start.IsPaged() {
		return fetch(ctx, start)
	}

	pages := make([]*domain.Page, n)
	g, gctx := errgroup.WithContext(ctx)
	cursor := start
	for i := 0; i < n; i++ {
		c := cursor
		g.Go(func() error {
			page, err := fetch(gctx, c)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
		cursor = cursor.Next()
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &domain.Page{}
	payloads := make([]*domain.JiraPayload, 0, n)
	for _, page := range pages {
		if page.Exhausted() {
			break
		}
		merged.Edges = append(merged.Edges, page.Edges...)
		payloads = append(payloads, page.Payload)
	}
	merged.Payload = domain.MergePayloads(payloads...)
	return merged, nil
}
