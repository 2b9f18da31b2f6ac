package admin

import (
	"time"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// StatusResponse is the JSON form of a sync report.
type StatusResponse struct {
	Subscription SubscriptionView `json:"subscription"`
	Tasks        []string         `json:"tasks"`
	Complete     int              `json:"complete"`
	Failed       int              `json:"failed"`
	Repos        []RepoView       `json:"repos"`
}

// SubscriptionView is the JSON form of a subscription.
type SubscriptionView struct {
	ID                 int64      `json:"id"`
	JiraHost           string     `json:"jiraHost"`
	InstallationID     int64      `json:"gitHubInstallationId"`
	GitHubBaseURL      string     `json:"gitHubBaseUrl,omitempty"`
	SyncStatus         string     `json:"syncStatus"`
	BackfillSince      *time.Time `json:"backfillSince,omitempty"`
	TotalNumberOfRepos int        `json:"totalNumberOfRepos"`
	SyncedRepos        int        `json:"syncedRepos"`
}

// RepoView is the JSON form of one repository's progress.
type RepoView struct {
	ID         int64               `json:"id"`
	FullName   string              `json:"fullName"`
	FailedCode string              `json:"failedCode,omitempty"`
	Tasks      map[string]TaskView `json:"tasks"`
}

// TaskView is the JSON form of one task's progress.
type TaskView struct {
	Status string `json:"status"`
	Cursor string `json:"cursor,omitempty"`
}

// NewStatusResponse converts a report for the wire.
func NewStatusResponse(report *domain.SyncReport) StatusResponse {
	sub := report.Subscription
	resp := StatusResponse{
		Subscription: SubscriptionView{
			ID:                 sub.ID,
			JiraHost:           sub.JiraHost,
			InstallationID:     sub.GitHubInstallationID,
			GitHubBaseURL:      sub.GitHubBaseURL,
			SyncStatus:         string(sub.SyncStatus),
			BackfillSince:      sub.BackfillSince,
			TotalNumberOfRepos: sub.TotalNumberOfRepos,
			SyncedRepos:        sub.SyncedRepos,
		},
		Tasks:    make([]string, len(report.Tasks)),
		Complete: report.Complete,
		Failed:   report.Failed,
		Repos:    make([]RepoView, 0, len(report.Repos)),
	}
	for i, t := range report.Tasks {
		resp.Tasks[i] = string(t)
	}

	for _, st := range report.Repos {
		view := RepoView{
			ID:         st.Repository.ID,
			FullName:   st.Repository.FullName,
			FailedCode: string(st.FailedCode),
			Tasks:      make(map[string]TaskView, len(report.Tasks)),
		}
		for _, t := range report.Tasks {
			p := st.Progress(t)
			view.Tasks[string(t)] = TaskView{Status: string(p.Status), Cursor: p.Cursor}
		}
		resp.Repos = append(resp.Repos, view)
	}
	return resp
}
