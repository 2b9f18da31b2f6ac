package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// Jira deployment environment types.
const (
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"
	EnvironmentTesting     = "testing"
	EnvironmentDevelopment = "development"
	EnvironmentUnmapped    = "unmapped"
)

// fetchDeployments lists one page of deployments, newest first, with
// the latest status of each. Deployments created before the backfill
// horizon end the task.
func fetchDeployments(
	ctx context.Context, client *Client, repo domain.Repository, cursor domain.Cursor, since *time.Time,
) (*domain.Page, error) {
	opts := &gh.DeploymentsListOptions{
		ListOptions: gh.ListOptions{
			Page:    cursor.PageNo,
			PerPage: cursor.PerPage,
		},
	}

	deployments, _, err := client.gh.Repositories.ListDeployments(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, client.wrapError(err, "list deployments")
	}

	payload := newPayload(repo)
	edges := make([]domain.Edge, 0, len(deployments))
	for _, d := range deployments {
		if before(d.GetCreatedAt().Time, since) {
			break
		}
		edges = append(edges, restEdge(cursor, strconv.FormatInt(d.GetID(), 10)))

		statuses, _, err := client.gh.Repositories.ListDeploymentStatuses(
			ctx, repo.Owner, repo.Name, d.GetID(), &gh.ListOptions{PerPage: 1},
		)
		if err != nil {
			return nil, client.wrapError(err, fmt.Sprintf("list statuses of deployment %d", d.GetID()))
		}
		var latest *gh.DeploymentStatus
		if len(statuses) > 0 {
			latest = statuses[0]
		}

		message, err := deploymentCommitMessage(ctx, client, repo, d.GetSHA())
		if err != nil {
			return nil, err
		}

		if jd := toJiraDeployment(repo, d, latest, message); len(jd.IssueKeys()) > 0 {
			payload.Deployments = append(payload.Deployments, jd)
		}
	}
	return finishPage(edges, payload), nil
}

// deploymentCommitMessage returns the message of the deployed commit.
// A commit that no longer exists yields no message.
func deploymentCommitMessage(ctx context.Context, client *Client, repo domain.Repository, sha string) (string, error) {
	if sha == "" {
		return "", nil
	}
	commit, _, err := client.gh.Repositories.GetCommit(ctx, repo.Owner, repo.Name, sha, nil)
	if err != nil {
		wrapped := client.wrapError(err, "get deployed commit")
		if IsNotFound(wrapped) {
			return "", nil
		}
		return "", wrapped
	}
	return commit.GetCommit().GetMessage(), nil
}

func toJiraDeployment(
	repo domain.Repository, d *gh.Deployment, status *gh.DeploymentStatus, commitMessage string,
) domain.JiraDeployment {
	env := d.GetEnvironment()
	keys := domain.ExtractIssueKeys(d.GetRef(), d.GetDescription(), commitMessage)

	url := repo.URL + "/deployments"
	lastUpdated := d.GetUpdatedAt().Time
	if status != nil {
		if status.GetLogURL() != "" {
			url = status.GetLogURL()
		} else if status.GetTargetURL() != "" {
			url = status.GetTargetURL()
		}
		lastUpdated = status.GetUpdatedAt().Time
	}

	displayName := d.GetDescription()
	if displayName == "" {
		displayName = fmt.Sprintf("%s to %s", d.GetRef(), env)
	}

	jd := domain.JiraDeployment{
		SchemaVersion:            jiraSchemaVersion,
		DeploymentSequenceNumber: d.GetID(),
		DisplayName:              displayName,
		URL:                      url,
		Description:              d.GetDescription(),
		LastUpdated:              lastUpdated,
		State:                    deploymentState(status.GetState()),
		Pipeline: domain.JiraDeploymentPipeline{
			ID:          d.GetTask(),
			DisplayName: d.GetTask(),
			URL:         repo.URL + "/deployments",
		},
		Environment: domain.JiraDeploymentEnvironment{
			ID:          env,
			DisplayName: env,
			Type:        environmentType(env),
		},
	}
	if len(keys) > 0 {
		jd.Associations = []domain.JiraAssociation{{AssociationType: "issueIdOrKeys", Values: keys}}
	}
	return jd
}

func deploymentState(state string) string {
	switch state {
	case "success":
		return domain.DeploymentSuccessful
	case "failure", "error":
		return domain.DeploymentFailed
	case "in_progress":
		return domain.DeploymentInProgress
	case "queued", "pending", "waiting":
		return domain.DeploymentPending
	default:
		return domain.DeploymentUnknown
	}
}

func environmentType(env string) string {
	env = strings.ToLower(env)
	switch {
	case strings.Contains(env, "stag"), strings.Contains(env, "preprod"):
		return EnvironmentStaging
	case strings.Contains(env, "prod"), env == "live":
		return EnvironmentProduction
	case strings.Contains(env, "test"), env == "qa", strings.Contains(env, "uat"):
		return EnvironmentTesting
	case strings.Contains(env, "dev"):
		return EnvironmentDevelopment
	default:
		return EnvironmentUnmapped
	}
}
