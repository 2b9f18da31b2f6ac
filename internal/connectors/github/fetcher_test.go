package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) GetToken(context.Context, int64) (string, error) {
	return s.token, s.err
}

var testRepo = domain.Repository{
	ID:       7,
	Name:     "widgets",
	Owner:    "acme",
	FullName: "acme/widgets",
	URL:      "https://github.com/acme/widgets",
}

var cloudMeta = domain.SyncMeta{
	SubscriptionID: 1,
	Installation:   domain.InstallationContext{InstallationID: 42, JiraHost: "https://acme.atlassian.net"},
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func respondStatus(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

func newTestFetcher(t *testing.T, mux *http.ServeMux) *Fetcher {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewFetcher(NewClientFactory(
		staticTokens{token: "test-token"},
		WithAPIURL(server.URL),
		WithRequestRate(1000),
	))
}

func task(tt domain.TaskType) domain.Task {
	return domain.Task{Type: tt, RepositoryID: testRepo.ID, Repository: testRepo}
}

func date(s string) *time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &d
}

const pullsJSON = `[
  {"number": 12, "title": "JIRA-7 add widgets", "state": "open",
   "html_url": "https://github.com/acme/widgets/pull/12",
   "user": {"login": "octo", "avatar_url": "https://avatars/octo", "html_url": "https://github.com/octo"},
   "head": {"ref": "feature/JIRA-7"}, "base": {"ref": "main"},
   "created_at": "2026-02-01T00:00:00Z", "updated_at": "2026-02-02T00:00:00Z"},
  {"number": 11, "title": "chore: bump deps", "state": "closed",
   "merged_at": "2026-01-15T00:00:00Z",
   "head": {"ref": "deps"}, "base": {"ref": "main"},
   "created_at": "2026-01-10T00:00:00Z", "updated_at": "2026-01-15T00:00:00Z"}
]`

func TestFetcher_StartCursor(t *testing.T) {
	f := NewFetcher(NewClientFactory(staticTokens{}))

	assert.True(t, f.StartCursor(domain.TaskBranch, 50).IsZero())
	assert.True(t, f.StartCursor(domain.TaskCommit, 50).IsZero())
	assert.Equal(t, domain.NewPageCursor(20, 1), f.StartCursor(domain.TaskPull, 20))
	assert.Equal(t, domain.NewPageCursor(20, 1), f.StartCursor(domain.TaskCodeScanningAlert, 20))
}

func TestFetcher_PullRequests(t *testing.T) {
	var query map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		query = map[string]string{
			"page":     r.URL.Query().Get("page"),
			"per_page": r.URL.Query().Get("per_page"),
			"state":    r.URL.Query().Get("state"),
		}
		respond(pullsJSON)(w, r)
	})
	f := newTestFetcher(t, mux)

	page, err := f.FetchPage(context.Background(), task(domain.TaskPull), domain.NewPageCursor(30, 2), 30, cloudMeta)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"page": "2", "per_page": "30", "state": "all"}, query)
	require.Len(t, page.Edges, 2)
	assert.Equal(t, domain.NewPageCursor(30, 3), page.NextCursor())

	require.NotNil(t, page.Payload)
	assert.Equal(t, "7", page.Payload.Repository.ID)
	assert.Equal(t, "acme/widgets", page.Payload.Repository.Name)
	require.Len(t, page.Payload.PullRequests, 1)

	pr := page.Payload.PullRequests[0]
	assert.Equal(t, "12", pr.ID)
	assert.Equal(t, "#12", pr.DisplayID)
	assert.Equal(t, []string{"JIRA-7"}, pr.IssueKeys)
	assert.Equal(t, domain.PullRequestOpen, pr.Status)
	assert.Equal(t, "octo", pr.Author.Name)
	assert.Equal(t, "https://github.com/acme/widgets/tree/feature/JIRA-7", pr.SourceBranchURL)
	assert.Equal(t, "main", pr.DestinationBranch)
}

func TestFetcher_PullRequests_StopsAtBackfillSince(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", respond(pullsJSON))
	f := newTestFetcher(t, mux)

	meta := cloudMeta
	meta.BackfillSince = date("2026-01-20")

	page, err := f.FetchPage(context.Background(), task(domain.TaskPull), domain.NewPageCursor(20, 1), 20, meta)
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	assert.Equal(t, "12", page.Edges[0].NodeID)

	meta.BackfillSince = date("2026-03-01")
	page, err = f.FetchPage(context.Background(), task(domain.TaskPull), domain.NewPageCursor(20, 1), 20, meta)
	require.NoError(t, err)
	assert.True(t, page.Exhausted())
}

func TestFetcher_Cursors(t *testing.T) {
	var gotPage string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page") + "/" + r.URL.Query().Get("per_page")
		respond(`[]`)(w, r)
	})
	f := newTestFetcher(t, mux)
	ctx := context.Background()

	t.Run("zero cursor starts at page one", func(t *testing.T) {
		page, err := f.FetchPage(ctx, task(domain.TaskPull), domain.Cursor{}, 20, cloudMeta)
		require.NoError(t, err)
		assert.Equal(t, "1/20", gotPage)
		assert.True(t, page.Exhausted())
		assert.Nil(t, page.Payload)
	})

	t.Run("legacy cursor keeps its page", func(t *testing.T) {
		_, err := f.FetchPage(ctx, task(domain.TaskPull), domain.LegacyCursor(4), 20, cloudMeta)
		require.NoError(t, err)
		assert.Equal(t, "4/20", gotPage)
	})

	t.Run("provider cursor on a REST task", func(t *testing.T) {
		_, err := f.FetchPage(ctx, task(domain.TaskPull), domain.ProviderCursor("Y3Vyc29y"), 20, cloudMeta)
		assert.ErrorIs(t, err, domain.ErrInvalidCursor)
	})

	t.Run("page cursor on a GraphQL task", func(t *testing.T) {
		_, err := f.FetchPage(ctx, task(domain.TaskCommit), domain.NewPageCursor(20, 2), 20, cloudMeta)
		assert.ErrorIs(t, err, domain.ErrInvalidCursor)
	})

	t.Run("unknown task type", func(t *testing.T) {
		_, err := f.FetchPage(ctx, task(domain.TaskRepository), domain.NewPageCursor(20, 1), 20, cloudMeta)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestFetcher_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, domain.ErrPermissionDenied},
		{"forbidden", http.StatusForbidden, domain.ErrPermissionDenied},
		{"not found", http.StatusNotFound, domain.ErrNotFound},
		{"server error", http.StatusInternalServerError, domain.ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/repos/acme/widgets/pulls", respondStatus(tt.status, `{"message":"nope"}`))
			f := newTestFetcher(t, mux)

			_, err := f.FetchPage(context.Background(), task(domain.TaskPull), domain.NewPageCursor(20, 1), 20, cloudMeta)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, IsRateLimited(err))
		})
	}
}

func TestFetcher_RateLimited(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderRateLimit, "5000")
		w.Header().Set(HeaderRateRemaining, "0")
		w.Header().Set(HeaderRateReset, strconv.FormatInt(reset.Unix(), 10))
		respondStatus(http.StatusForbidden, `{"message":"API rate limit exceeded"}`)(w, r)
	})
	f := newTestFetcher(t, mux)

	_, err := f.FetchPage(context.Background(), task(domain.TaskPull), domain.NewPageCursor(20, 1), 20, cloudMeta)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	var retry domain.RetryAfterError
	require.True(t, errors.As(err, &retry))
	assert.Equal(t, reset.Unix(), retry.RetryAfter().Unix())

	t.Run("next call is refused locally", func(t *testing.T) {
		_, err := f.FetchPage(context.Background(), task(domain.TaskPull), domain.NewPageCursor(20, 1), 20, cloudMeta)
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})
}

func TestFetcher_Builds(t *testing.T) {
	var created string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		created = r.URL.Query().Get("created")
		respond(`{"total_count": 2, "workflow_runs": [
		  {"id": 99, "name": "CI", "head_branch": "JIRA-9-fix", "head_sha": "abc123",
		   "run_number": 5, "status": "completed", "conclusion": "success", "workflow_id": 3,
		   "html_url": "https://github.com/acme/widgets/actions/runs/99",
		   "updated_at": "2026-02-03T00:00:00Z"},
		  {"id": 98, "name": "CI", "head_branch": "main", "status": "in_progress",
		   "head_commit": {"message": "no keys here"}}
		]}`)(w, r)
	})
	f := newTestFetcher(t, mux)

	meta := cloudMeta
	meta.BackfillSince = date("2026-01-20")
	page, err := f.FetchPage(context.Background(), task(domain.TaskBuild), domain.NewPageCursor(20, 1), 20, meta)
	require.NoError(t, err)

	assert.Equal(t, ">=2026-01-20", created)
	require.Len(t, page.Edges, 2)
	require.Len(t, page.Payload.Builds, 1)

	b := page.Payload.Builds[0]
	assert.Equal(t, "3", b.PipelineID)
	assert.Equal(t, 5, b.BuildNumber)
	assert.Equal(t, domain.BuildSuccessful, b.State)
	assert.Equal(t, []string{"JIRA-9"}, b.IssueKeys)
	require.Len(t, b.References, 1)
	assert.Equal(t, "abc123", b.References[0].Commit.ID)
	assert.Equal(t, "JIRA-9-fix", b.References[0].Ref.Name)
}

func TestBuildState(t *testing.T) {
	tests := []struct {
		status, conclusion, want string
	}{
		{"queued", "", domain.BuildPending},
		{"waiting", "", domain.BuildPending},
		{"in_progress", "", domain.BuildInProgress},
		{"completed", "success", domain.BuildSuccessful},
		{"completed", "failure", domain.BuildFailed},
		{"completed", "timed_out", domain.BuildFailed},
		{"completed", "cancelled", domain.BuildCancelled},
		{"completed", "skipped", domain.BuildUnknown},
		{"mystery", "", domain.BuildUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.conclusion, func(t *testing.T) {
			assert.Equal(t, tt.want, buildState(tt.status, tt.conclusion))
		})
	}
}

func TestFetcher_Deployments(t *testing.T) {
	deploymentsJSON := `[{"id": 501, "sha": "def456", "ref": "JIRA-3-release", "task": "deploy",
	  "environment": "production", "created_at": "2026-02-01T00:00:00Z", "updated_at": "2026-02-01T00:00:00Z"}]`

	t.Run("latest status and deployed commit", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widgets/deployments", respond(deploymentsJSON))
		mux.HandleFunc("/repos/acme/widgets/deployments/501/statuses", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("per_page"))
			respond(`[{"state": "success", "log_url": "https://ci.example.com/log/1",
			  "updated_at": "2026-02-01T00:10:00Z"}]`)(w, r)
		})
		mux.HandleFunc("/repos/acme/widgets/commits/def456", respond(`{"sha": "def456", "commit": {"message": "JIRA-4 ship it"}}`))
		f := newTestFetcher(t, mux)

		page, err := f.FetchPage(context.Background(), task(domain.TaskDeployment), domain.NewPageCursor(20, 1), 20, cloudMeta)
		require.NoError(t, err)
		require.Len(t, page.Payload.Deployments, 1)

		d := page.Payload.Deployments[0]
		assert.Equal(t, int64(501), d.DeploymentSequenceNumber)
		assert.Equal(t, []string{"JIRA-3", "JIRA-4"}, d.IssueKeys())
		assert.Equal(t, domain.DeploymentSuccessful, d.State)
		assert.Equal(t, "https://ci.example.com/log/1", d.URL)
		assert.Equal(t, EnvironmentProduction, d.Environment.Type)
		assert.Equal(t, "JIRA-3-release to production", d.DisplayName)
	})

	t.Run("missing commit is tolerated", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widgets/deployments", respond(deploymentsJSON))
		mux.HandleFunc("/repos/acme/widgets/deployments/501/statuses", respond(`[]`))
		mux.HandleFunc("/repos/acme/widgets/commits/def456", respondStatus(http.StatusNotFound, `{"message":"No commit found"}`))
		f := newTestFetcher(t, mux)

		page, err := f.FetchPage(context.Background(), task(domain.TaskDeployment), domain.NewPageCursor(20, 1), 20, cloudMeta)
		require.NoError(t, err)
		require.Len(t, page.Payload.Deployments, 1)
		assert.Equal(t, []string{"JIRA-3"}, page.Payload.Deployments[0].IssueKeys())
		assert.Equal(t, domain.DeploymentUnknown, page.Payload.Deployments[0].State)
	})

	t.Run("status failure aborts the page", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widgets/deployments", respond(deploymentsJSON))
		mux.HandleFunc("/repos/acme/widgets/deployments/501/statuses", respondStatus(http.StatusBadGateway, `{"message":"bad gateway"}`))
		f := newTestFetcher(t, mux)

		_, err := f.FetchPage(context.Background(), task(domain.TaskDeployment), domain.NewPageCursor(20, 1), 20, cloudMeta)
		assert.ErrorIs(t, err, domain.ErrConnection)
	})
}

func TestEnvironmentType(t *testing.T) {
	tests := map[string]string{
		"production":  EnvironmentProduction,
		"Prod-EU":     EnvironmentProduction,
		"staging":     EnvironmentStaging,
		"preprod":     EnvironmentStaging,
		"qa":          EnvironmentTesting,
		"integration": EnvironmentUnmapped,
		"dev":         EnvironmentDevelopment,
		"test-2":      EnvironmentTesting,
	}
	for env, want := range tests {
		t.Run(env, func(t *testing.T) {
			assert.Equal(t, want, environmentType(env))
		})
	}
}

func TestClientFactory(t *testing.T) {
	f := NewClientFactory(staticTokens{token: "x"})

	a, err := f.Client(domain.InstallationContext{InstallationID: 1})
	require.NoError(t, err)
	again, err := f.Client(domain.InstallationContext{InstallationID: 1})
	require.NoError(t, err)
	other, err := f.Client(domain.InstallationContext{InstallationID: 2})
	require.NoError(t, err)
	ghes, err := f.Client(domain.InstallationContext{
		InstallationID: 1,
		AppConfig:      &domain.GitHubAppConfig{GitHubBaseURL: "https://ghe.example.com/"},
	})
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, other)
	assert.NotSame(t, a, ghes)
	assert.Equal(t, "https://api.github.com/", a.GitHub().BaseURL.String())
	assert.Equal(t, "https://ghe.example.com/api/v3/", ghes.GitHub().BaseURL.String())
}

func TestFetcher_TokenFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", respond(`[]`))
	server := httptest.NewServer(mux)
	defer server.Close()

	f := NewFetcher(NewClientFactory(staticTokens{err: errors.New("installation suspended")}, WithAPIURL(server.URL)))
	_, err := f.FetchPage(context.Background(), task(domain.TaskPull), domain.NewPageCursor(20, 1), 20, cloudMeta)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "installation suspended")
}

func TestFetcher_Enterprise(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/widgets/pulls", respond(pullsJSON))
	mux.HandleFunc("/api/graphql", respond(`{"data": {"repository": {"defaultBranchRef": null}}}`))
	server := httptest.NewServer(mux)
	defer server.Close()

	f := NewFetcher(NewClientFactory(staticTokens{token: "t"}, WithRequestRate(1000)))
	meta := cloudMeta
	meta.Installation.AppConfig = &domain.GitHubAppConfig{GitHubBaseURL: server.URL}

	page, err := f.FetchPage(context.Background(), task(domain.TaskPull), domain.NewPageCursor(20, 1), 20, meta)
	require.NoError(t, err)
	assert.Len(t, page.Edges, 2)

	page, err = f.FetchPage(context.Background(), task(domain.TaskCommit), domain.Cursor{}, 20, meta)
	require.NoError(t, err)
	assert.True(t, page.Exhausted())
}
