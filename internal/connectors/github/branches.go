package github

import (
	"context"

	"github.com/shurcooL/githubv4"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

type branchesQuery struct {
	Repository struct {
		Refs struct {
			Edges []struct {
				Cursor githubv4.String
				Node   struct {
					Name                   githubv4.String
					AssociatedPullRequests struct {
						Nodes []struct {
							Title githubv4.String
						}
					} `graphql:"associatedPullRequests(first: 1)"`
					Target struct {
						Commit commitNode `graphql:"... on Commit"`
					}
				}
			}
		} `graphql:"refs(first: $first, after: $after, refPrefix: $refPrefix)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// fetchBranches pages through the repository's heads. A branch is sent
// when its name, its last commit or its pull request names an issue.
func fetchBranches(
	ctx context.Context, client *Client, repo domain.Repository, cursor domain.Cursor, pageSize int,
) (*domain.Page, error) {
	var q branchesQuery
	vars := map[string]interface{}{
		"owner":     githubv4.String(repo.Owner),
		"name":      githubv4.String(repo.Name),
		"first":     githubv4.Int(min(pageSize, MaxGraphQLPageSize)),
		"after":     afterVar(cursor),
		"refPrefix": githubv4.String("refs/heads/"),
	}

	if err := client.graphql.Query(ctx, &q, vars); err != nil {
		return nil, client.wrapGraphQLError(err, "query branches")
	}

	payload := newPayload(repo)
	edges := make([]domain.Edge, 0, len(q.Repository.Refs.Edges))
	for _, e := range q.Repository.Refs.Edges {
		name := string(e.Node.Name)
		edges = append(edges, domain.Edge{Cursor: domain.ProviderCursor(string(e.Cursor)), NodeID: name})

		var prTitle string
		if prs := e.Node.AssociatedPullRequests.Nodes; len(prs) > 0 {
			prTitle = string(prs[0].Title)
		}
		last := e.Node.Target.Commit
		keys := domain.ExtractIssueKeys(name, prTitle, string(last.Message))
		if len(keys) == 0 {
			continue
		}

		payload.Branches = append(payload.Branches, domain.JiraBranch{
			ID:                   name,
			IssueKeys:            keys,
			Name:                 name,
			URL:                  branchURL(repo, name),
			CreatePullRequestURL: repo.URL + "/compare/" + name + "?expand=1",
			LastCommit:           toJiraCommit(last),
		})
	}
	return finishPage(edges, payload), nil
}
