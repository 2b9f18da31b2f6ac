package domain

import "time"

// Edge is one item of a fetched page together with the cursor that
// resumes right after it.
type Edge struct {
	Cursor Cursor
	NodeID string
}

// Page is the result of fetching one or more provider pages for a task.
// Empty Edges means the task is exhausted. Payload is nil when nothing
// on the page could be sent to Jira.
type Page struct {
	Edges   []Edge
	Payload *JiraPayload
}

// Exhausted reports whether the provider has no more data.
func (p *Page) Exhausted() bool {
	return p == nil || len(p.Edges) == 0
}

// NextCursor returns the cursor to persist after this page.
func (p *Page) NextCursor() Cursor {
	if p.Exhausted() {
		return Cursor{}
	}
	return p.Edges[len(p.Edges)-1].Cursor
}

// RepositoryPage is one page of the discovery listing.
type RepositoryPage struct {
	Edges        []Edge
	Repositories []Repository
}

// SyncMeta carries the per-message context a page fetch needs.
type SyncMeta struct {
	SubscriptionID int64
	Installation   InstallationContext
	BackfillSince  *time.Time
}
