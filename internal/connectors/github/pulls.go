package github

import (
	"context"
	"strconv"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// fetchPullRequests lists one page of pull requests, newest first.
// Pull requests created before the backfill horizon end the task.
func fetchPullRequests(
	ctx context.Context, client *Client, repo domain.Repository, cursor domain.Cursor, since *time.Time,
) (*domain.Page, error) {
	opts := &gh.PullRequestListOptions{
		State:     "all",
		Sort:      "created",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			Page:    cursor.PageNo,
			PerPage: cursor.PerPage,
		},
	}

	prs, _, err := client.gh.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, client.wrapError(err, "list pull requests")
	}

	payload := newPayload(repo)
	edges := make([]domain.Edge, 0, len(prs))
	for _, pr := range prs {
		if before(pr.GetCreatedAt().Time, since) {
			break
		}
		edges = append(edges, restEdge(cursor, strconv.Itoa(pr.GetNumber())))
		if jpr := toJiraPullRequest(repo, pr); len(jpr.IssueKeys) > 0 {
			payload.PullRequests = append(payload.PullRequests, jpr)
		}
	}
	return finishPage(edges, payload), nil
}

func toJiraPullRequest(repo domain.Repository, pr *gh.PullRequest) domain.JiraPullRequest {
	head := pr.GetHead().GetRef()
	base := pr.GetBase().GetRef()
	return domain.JiraPullRequest{
		ID:                   strconv.Itoa(pr.GetNumber()),
		IssueKeys:            domain.ExtractIssueKeys(pr.GetTitle(), head, pr.GetBody()),
		Status:               pullRequestStatus(pr),
		Title:                pr.GetTitle(),
		Author:               toJiraAuthor(pr.GetUser()),
		CommentCount:         pr.GetComments() + pr.GetReviewComments(),
		SourceBranch:         head,
		SourceBranchURL:      branchURL(repo, head),
		DestinationBranch:    base,
		DestinationBranchURL: branchURL(repo, base),
		URL:                  pr.GetHTMLURL(),
		DisplayID:            "#" + strconv.Itoa(pr.GetNumber()),
		LastUpdate:           pr.GetUpdatedAt().Time,
	}
}

func pullRequestStatus(pr *gh.PullRequest) string {
	switch {
	case pr.MergedAt != nil || pr.GetMerged():
		return domain.PullRequestMerged
	case pr.GetState() == "closed":
		return domain.PullRequestDeclined
	case pr.GetDraft():
		return domain.PullRequestDraft
	default:
		return domain.PullRequestOpen
	}
}

func toJiraAuthor(u *gh.User) domain.JiraAuthor {
	name := u.GetName()
	if name == "" {
		name = u.GetLogin()
	}
	return domain.JiraAuthor{
		Name:   name,
		Email:  u.GetEmail(),
		Avatar: u.GetAvatarURL(),
		URL:    u.GetHTMLURL(),
	}
}
