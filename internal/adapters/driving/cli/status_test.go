package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

func testReport() *domain.SyncReport {
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tasks := []domain.TaskType{domain.TaskPull, domain.TaskCommit}

	done := domain.NewRepoSyncState(1, domain.Repository{ID: 10, FullName: "acme/api"})
	done.Tasks[domain.TaskPull] = domain.TaskProgress{Status: domain.TaskStatusComplete}
	done.Tasks[domain.TaskCommit] = domain.TaskProgress{Status: domain.TaskStatusComplete}

	broken := domain.NewRepoSyncState(1, domain.Repository{ID: 11, FullName: "acme/web"})
	broken.Tasks[domain.TaskPull] = domain.TaskProgress{Status: domain.TaskStatusFailed}
	broken.FailedCode = domain.FailedCodePermissions

	return &domain.SyncReport{
		Subscription: domain.Subscription{
			ID:                   1,
			JiraHost:             "https://acme.atlassian.net",
			GitHubInstallationID: 42,
			SyncStatus:           domain.SyncStatusActive,
			BackfillSince:        &since,
			TotalNumberOfRepos:   2,
		},
		Repos:    []domain.RepoSyncState{done, broken},
		Tasks:    tasks,
		Complete: 1,
		Failed:   1,
	}
}

func TestStatusCmd(t *testing.T) {
	mock, cleanup := setupBackfillTest()
	defer cleanup()
	mock.report = testReport()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status", "1"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "Subscription 1")
	assert.Contains(t, out, "Status:       ACTIVE")
	assert.Contains(t, out, "Since:        2024-06-01")
	assert.Contains(t, out, "1 complete, 1 failed, 2 total")
	assert.Contains(t, out, "2 complete, 0 active, 1 pending, 1 failed")
	assert.Contains(t, out, "acme/api")
	assert.Contains(t, out, "acme/web (PERMISSIONS_ERROR)")
	assert.Contains(t, out, "FAILED")
	assert.NotContains(t, out, "\x1b[", "no colour when not writing to a terminal")
}

func TestStatusCmd_NoRepos(t *testing.T) {
	mock, cleanup := setupBackfillTest()
	defer cleanup()
	mock.report = &domain.SyncReport{Subscription: domain.Subscription{ID: 5, JiraHost: "https://acme.atlassian.net"}}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status", "5"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "never synced")
	assert.Contains(t, buf.String(), "No repositories discovered yet.")
}

func TestStatusCmd_NotFound(t *testing.T) {
	mock, cleanup := setupBackfillTest()
	defer cleanup()
	mock.err = domain.ErrNotFound

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"status", "5"})
	defer rootCmd.SetArgs(nil)

	assert.ErrorIs(t, rootCmd.Execute(), domain.ErrNotFound)
}

func TestProgressSummary(t *testing.T) {
	counts := progressSummary(testReport())
	assert.Equal(t, 2, counts[domain.TaskStatusComplete])
	assert.Equal(t, 1, counts[domain.TaskStatusFailed])
	assert.Equal(t, 1, counts[domain.TaskStatusPending])
	assert.Zero(t, counts[domain.TaskStatusActive])
}
