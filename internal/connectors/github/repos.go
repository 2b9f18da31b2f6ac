package github

import (
	"context"
	"fmt"
	"strconv"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// ListRepositories lists one page of the repositories the installation
// can access. The cursor is a page cursor; zero means page one.
func (f *Fetcher) ListRepositories(
	ctx context.Context, inst domain.InstallationContext, cursor domain.Cursor, pageSize int,
) (*domain.RepositoryPage, error) {
	if cursor.IsZero() {
		cursor = domain.NewPageCursor(pageSize, 1)
	}
	if !cursor.IsPaged() {
		return nil, fmt.Errorf("%w: repository listing needs a page cursor, got %q", domain.ErrInvalidCursor, cursor.String())
	}

	client, err := f.clients.Client(inst)
	if err != nil {
		return nil, err
	}

	list, _, err := client.gh.Apps.ListRepos(ctx, &gh.ListOptions{Page: cursor.PageNo, PerPage: cursor.PerPage})
	if err != nil {
		return nil, client.wrapError(err, "list installation repos")
	}

	page := &domain.RepositoryPage{}
	for _, r := range FilterRepos(list.Repositories) {
		repo := toRepository(r)
		page.Repositories = append(page.Repositories, repo)
		page.Edges = append(page.Edges, restEdge(cursor, strconv.FormatInt(repo.ID, 10)))
	}
	// A page of only filtered repos still has to advance the cursor.
	if len(page.Edges) == 0 && len(list.Repositories) > 0 {
		page.Edges = append(page.Edges, restEdge(cursor, ""))
	}
	return page, nil
}

// FilterRepos drops repositories that cannot be synced.
func FilterRepos(repos []*gh.Repository) []*gh.Repository {
	filtered := make([]*gh.Repository, 0, len(repos))
	for _, r := range repos {
		if r.GetDisabled() {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func toRepository(r *gh.Repository) domain.Repository {
	return domain.Repository{
		ID:        r.GetID(),
		Name:      r.GetName(),
		Owner:     r.GetOwner().GetLogin(),
		FullName:  r.GetFullName(),
		URL:       r.GetHTMLURL(),
		UpdatedAt: r.GetUpdatedAt().Time,
	}
}
