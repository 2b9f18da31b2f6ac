package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// pageOf returns a one-edge page for a paged cursor.
func pageOf(c domain.Cursor) *domain.Page {
	id := fmt.Sprintf("page-%d", c.PageNo)
	return &domain.Page{
		Edges:   []domain.Edge{{Cursor: c.Next(), NodeID: id}},
		Payload: &domain.JiraPayload{PullRequests: []domain.JiraPullRequest{{ID: id}}},
	}
}

func nodeIDs(p *domain.Page) []string {
	ids := make([]string, 0, len(p.Edges))
	for _, e := range p.Edges {
		ids = append(ids, e.NodeID)
	}
	return ids
}

func TestFetchPages_SingleCall(t *testing.T) {
	var calls atomic.Int32
	fetch := func(_ context.Context, c domain.Cursor) (*domain.Page, error) {
		calls.Add(1)
		return pageOf(c), nil
	}

	t.Run("n of one", func(t *testing.T) {
		calls.Store(0)
		page, err := FetchPages(context.Background(), 1, domain.NewPageCursor(20, 1), fetch)
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, []string{"page-1"}, nodeIDs(page))
	})

	t.Run("provider cursor cannot fan out", func(t *testing.T) {
		calls.Store(0)
		_, err := FetchPages(context.Background(), 3, domain.ProviderCursor("Y3Vyc29y"), fetch)
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestFetchPages_MergesInCursorOrder(t *testing.T) {
	// Earlier pages finish last.
	fetch := func(_ context.Context, c domain.Cursor) (*domain.Page, error) {
		time.Sleep(time.Duration(4-c.PageNo) * 10 * time.Millisecond)
		return pageOf(c), nil
	}

	page, err := FetchPages(context.Background(), 3, domain.NewPageCursor(20, 1), fetch)
	require.NoError(t, err)

	assert.Equal(t, []string{"page-1", "page-2", "page-3"}, nodeIDs(page))
	require.NotNil(t, page.Payload)
	require.Len(t, page.Payload.PullRequests, 3)
	assert.Equal(t, "page-1", page.Payload.PullRequests[0].ID)
	assert.Equal(t, domain.NewPageCursor(20, 4), page.NextCursor())
}

func TestFetchPages_StopsAtFirstExhaustedPage(t *testing.T) {
	fetch := func(_ context.Context, c domain.Cursor) (*domain.Page, error) {
		if c.PageNo == 2 {
			return &domain.Page{}, nil
		}
		return pageOf(c), nil
	}

	page, err := FetchPages(context.Background(), 3, domain.NewPageCursor(20, 1), fetch)
	require.NoError(t, err)

	assert.Equal(t, []string{"page-1"}, nodeIDs(page))
	assert.Equal(t, domain.NewPageCursor(20, 2), page.NextCursor())
}

func TestFetchPages_AllExhausted(t *testing.T) {
	fetch := func(context.Context, domain.Cursor) (*domain.Page, error) {
		return &domain.Page{}, nil
	}

	page, err := FetchPages(context.Background(), 2, domain.NewPageCursor(20, 5), fetch)
	require.NoError(t, err)
	assert.True(t, page.Exhausted())
	assert.Nil(t, page.Payload)
}

func TestFetchPages_ErrorFailsBatch(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(_ context.Context, c domain.Cursor) (*domain.Page, error) {
		if c.PageNo == 2 {
			return nil, boom
		}
		return pageOf(c), nil
	}

	page, err := FetchPages(context.Background(), 2, domain.NewPageCursor(20, 1), fetch)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, page)
}

func TestFetchPages_LegacyCursorNormalizes(t *testing.T) {
	var seen []domain.Cursor
	done := make(chan domain.Cursor, 2)
	fetch := func(_ context.Context, c domain.Cursor) (*domain.Page, error) {
		done <- c
		return pageOf(c), nil
	}

	_, err := FetchPages(context.Background(), 2, domain.LegacyCursor(3), fetch)
	require.NoError(t, err)
	close(done)
	for c := range done {
		seen = append(seen, c)
	}
	assert.ElementsMatch(t, []domain.Cursor{
		domain.LegacyCursor(3),
		domain.NewPageCursor(domain.DefaultPerPage, 4),
	}, seen)
}
