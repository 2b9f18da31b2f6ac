package github

import (
	"context"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// FlagMergeCommit marks commits with more than one parent.
const FlagMergeCommit = "MERGE_COMMIT"

// commitNode is the commit selection shared by the commit and branch queries.
type commitNode struct {
	OID                     githubv4.GitObjectID `graphql:"oid"`
	AbbreviatedOID          githubv4.String      `graphql:"abbreviatedOid"`
	Message                 githubv4.String
	URL                     githubv4.URI `graphql:"url"`
	AuthoredDate            githubv4.DateTime
	ChangedFilesIfAvailable *githubv4.Int
	Author                  struct {
		Name      githubv4.String
		Email     githubv4.String
		AvatarURL githubv4.URI `graphql:"avatarUrl"`
		User      *struct {
			URL githubv4.URI `graphql:"url"`
		}
	}
	Parents struct {
		TotalCount githubv4.Int
	} `graphql:"parents(first: 1)"`
}

type commitsQuery struct {
	Repository struct {
		DefaultBranchRef *struct {
			Target struct {
				Commit struct {
					History struct {
						Edges []struct {
							Cursor githubv4.String
							Node   commitNode
						}
					} `graphql:"history(first: $first, after: $after, since: $since)"`
				} `graphql:"... on Commit"`
			}
		}
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// fetchCommits pages through the default branch history, newest first,
// stopping at the backfill horizon.
func fetchCommits(
	ctx context.Context, client *Client, repo domain.Repository, cursor domain.Cursor, pageSize int, since *time.Time,
) (*domain.Page, error) {
	var q commitsQuery
	vars := map[string]interface{}{
		"owner": githubv4.String(repo.Owner),
		"name":  githubv4.String(repo.Name),
		"first": githubv4.Int(min(pageSize, MaxGraphQLPageSize)),
		"after": afterVar(cursor),
		"since": (*githubv4.GitTimestamp)(nil),
	}
	if since != nil {
		vars["since"] = githubv4.NewGitTimestamp(githubv4.GitTimestamp{Time: *since})
	}

	if err := client.graphql.Query(ctx, &q, vars); err != nil {
		return nil, client.wrapGraphQLError(err, "query commits")
	}

	payload := newPayload(repo)
	var edges []domain.Edge
	if ref := q.Repository.DefaultBranchRef; ref != nil {
		for _, e := range ref.Target.Commit.History.Edges {
			edges = append(edges, domain.Edge{
				Cursor: domain.ProviderCursor(string(e.Cursor)),
				NodeID: string(e.Node.OID),
			})
			if c := toJiraCommit(e.Node); len(c.IssueKeys) > 0 {
				payload.Commits = append(payload.Commits, c)
			}
		}
	}
	return finishPage(edges, payload), nil
}

func afterVar(cursor domain.Cursor) *githubv4.String {
	if cursor.Kind != domain.CursorProvider {
		return nil
	}
	return githubv4.NewString(githubv4.String(cursor.Token))
}

func toJiraCommit(n commitNode) domain.JiraCommit {
	c := domain.JiraCommit{
		ID:        string(n.OID),
		IssueKeys: domain.ExtractIssueKeys(string(n.Message)),
		Hash:      string(n.OID),
		DisplayID: string(n.AbbreviatedOID),
		Message:   string(n.Message),
		Author: domain.JiraAuthor{
			Name:   string(n.Author.Name),
			Email:  string(n.Author.Email),
			Avatar: uriString(n.Author.AvatarURL),
		},
		AuthorTimestamp: n.AuthoredDate.Time,
		URL:             uriString(n.URL),
	}
	if n.Author.User != nil {
		c.Author.URL = uriString(n.Author.User.URL)
	}
	if n.ChangedFilesIfAvailable != nil {
		c.FileCount = int(*n.ChangedFilesIfAvailable)
	}
	if n.Parents.TotalCount > 1 {
		c.Flags = []string{FlagMergeCommit}
	}
	return c
}

func uriString(u githubv4.URI) string {
	if u.URL == nil {
		return ""
	}
	return u.String()
}
