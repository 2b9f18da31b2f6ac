package github

import (
	"context"
	"strconv"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// jiraSchemaVersion is the schema version of the builds, deployments
// and security payloads.
const jiraSchemaVersion = "1.0"

// fetchBuilds lists one page of workflow runs. The backfill horizon is
// passed to GitHub as a created filter.
func fetchBuilds(
	ctx context.Context, client *Client, repo domain.Repository, cursor domain.Cursor, since *time.Time,
) (*domain.Page, error) {
	opts := &gh.ListWorkflowRunsOptions{
		ListOptions: gh.ListOptions{
			Page:    cursor.PageNo,
			PerPage: cursor.PerPage,
		},
	}
	if since != nil {
		opts.Created = ">=" + since.UTC().Format(time.DateOnly)
	}

	runs, _, err := client.gh.Actions.ListRepositoryWorkflowRuns(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, client.wrapError(err, "list workflow runs")
	}

	payload := newPayload(repo)
	edges := make([]domain.Edge, 0, len(runs.WorkflowRuns))
	for _, run := range runs.WorkflowRuns {
		edges = append(edges, restEdge(cursor, strconv.FormatInt(run.GetID(), 10)))
		if b := toJiraBuild(repo, run); len(b.IssueKeys) > 0 {
			payload.Builds = append(payload.Builds, b)
		}
	}
	return finishPage(edges, payload), nil
}

func toJiraBuild(repo domain.Repository, run *gh.WorkflowRun) domain.JiraBuild {
	branch := run.GetHeadBranch()
	b := domain.JiraBuild{
		SchemaVersion: jiraSchemaVersion,
		PipelineID:    strconv.FormatInt(run.GetWorkflowID(), 10),
		BuildNumber:   run.GetRunNumber(),
		DisplayName:   run.GetName(),
		URL:           run.GetHTMLURL(),
		State:         buildState(run.GetStatus(), run.GetConclusion()),
		LastUpdated:   run.GetUpdatedAt().Time,
		IssueKeys: domain.ExtractIssueKeys(
			branch, run.GetDisplayTitle(), run.GetHeadCommit().GetMessage(),
		),
	}

	var ref domain.JiraBuildReference
	ref.Commit.ID = run.GetHeadSHA()
	ref.Commit.RepositoryURI = repo.URL
	ref.Ref.Name = branch
	ref.Ref.URI = branchURL(repo, branch)
	b.References = []domain.JiraBuildReference{ref}
	return b
}

func buildState(status, conclusion string) string {
	switch status {
	case "queued", "requested", "waiting", "pending":
		return domain.BuildPending
	case "in_progress":
		return domain.BuildInProgress
	case "completed":
	default:
		return domain.BuildUnknown
	}

	switch conclusion {
	case "success":
		return domain.BuildSuccessful
	case "failure", "timed_out", "startup_failure":
		return domain.BuildFailed
	case "cancelled":
		return domain.BuildCancelled
	default:
		return domain.BuildUnknown
	}
}
