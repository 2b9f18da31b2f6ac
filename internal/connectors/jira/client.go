package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.JiraSubmitter = (*Submitter)(nil)

// MaxBatchSize is the largest number of entities Jira accepts per bulk call.
const MaxBatchSize = 100

// Jira development information endpoints.
const (
	DevInfoPath     = "rest/devinfo/0.10/bulk"
	BuildsPath      = "rest/builds/0.1/bulk"
	DeploymentsPath = "rest/deployments/0.1/bulk"
	SecurityPath    = "rest/security/1.0/bulk"
)

// OperationBackfill tags every submission so Jira treats it as history.
const OperationBackfill = "BACKFILL"

// Auth holds the credentials used to call Jira. A host with a shared
// secret is called as a Connect app with a JWT; any other host falls
// back to basic auth.
type Auth struct {
	Username      string
	APIToken      string
	AppKey        string
	SharedSecrets map[string]string
}

// RateLimitError reports a 429 from Jira.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("jira: rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// RetryAfter reports when Jira accepts requests again.
func (e *RateLimitError) RetryAfter() time.Time {
	return e.ResetAt
}

func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// Submitter ships backfill payloads to Jira's bulk development APIs.
type Submitter struct {
	auth      Auth
	transport http.RoundTripper
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	clients map[string]*jira.Client
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithTransport sets the transport under the auth layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Submitter) { s.transport = rt }
}

// NewSubmitter creates a submitter.
func NewSubmitter(auth Auth, logger *zap.Logger, opts ...Option) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Submitter{
		auth:    auth,
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]*jira.Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// client returns the go-jira client for a host, creating it on first use.
func (s *Submitter) client(host string) (*jira.Client, error) {
	host = strings.TrimSuffix(host, "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[host]; ok {
		return c, nil
	}

	var hc *http.Client
	if secret, ok := s.auth.SharedSecrets[host]; ok {
		tp := jira.JWTAuthTransport{Secret: []byte(secret), Issuer: s.auth.AppKey, Transport: s.transport}
		hc = tp.Client()
	} else {
		tp := jira.BasicAuthTransport{Username: s.auth.Username, Password: s.auth.APIToken, Transport: s.transport}
		hc = tp.Client()
	}

	c, err := jira.NewClient(hc, host)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}
	s.clients[host] = c
	return c, nil
}

type devInfoRepository struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	URL              string                   `json:"url"`
	Branches         []domain.JiraBranch      `json:"branches,omitempty"`
	Commits          []domain.JiraCommit      `json:"commits,omitempty"`
	PullRequests     []domain.JiraPullRequest `json:"pullRequests,omitempty"`
	UpdateSequenceID int64                    `json:"updateSequenceId"`
}

type devInfoRequest struct {
	PreventTransitions bool                `json:"preventTransitions"`
	OperationType      string              `json:"operationType"`
	Repositories       []devInfoRepository `json:"repositories"`
	Properties         map[string]string   `json:"properties"`
}

type buildsRequest struct {
	PreventTransitions bool               `json:"preventTransitions"`
	OperationType      string             `json:"operationType"`
	Properties         map[string]string  `json:"properties"`
	ProviderMetadata   map[string]string  `json:"providerMetadata"`
	Builds             []domain.JiraBuild `json:"builds"`
}

type deploymentsRequest struct {
	PreventTransitions bool                    `json:"preventTransitions"`
	OperationType      string                  `json:"operationType"`
	Properties         map[string]string       `json:"properties"`
	Deployments        []domain.JiraDeployment `json:"deployments"`
}

type securityRequest struct {
	OperationType   string                     `json:"operationType"`
	Properties      map[string]string          `json:"properties"`
	Vulnerabilities []domain.JiraVulnerability `json:"vulnerabilities"`
}

// submitResponse collects the rejection fields of the bulk APIs.
type submitResponse struct {
	RejectedEntities    []json.RawMessage `json:"rejectedEntities"`
	RejectedBuilds      []json.RawMessage `json:"rejectedBuilds"`
	RejectedDeployments []json.RawMessage `json:"rejectedDeployments"`
	FailedEntities      []json.RawMessage `json:"failedEntities"`
	UnknownIssueKeys    []string          `json:"unknownIssueKeys"`
}

func (r submitResponse) rejected() int {
	return len(r.RejectedEntities) + len(r.RejectedBuilds) + len(r.RejectedDeployments) + len(r.FailedEntities)
}

// Submit sends every entity of payload to its API in batches of at
// most MaxBatchSize. Submissions are upserts, so a retry after a
// partial failure is safe.
func (s *Submitter) Submit(ctx context.Context, jiraHost string, payload *domain.JiraPayload, opts domain.SubmitOptions) error {
	if payload.IsEmpty() {
		return nil
	}

	client, err := s.client(jiraHost)
	if err != nil {
		return err
	}

	seq := opts.UpdateSequenceID
	props := map[string]string{"installationId": strconv.FormatInt(opts.InstallationID, 10)}

	if err := s.submitDevInfo(ctx, client, payload, seq, props); err != nil {
		return err
	}

	for _, batch := range batches(payload.Builds) {
		builds := make([]domain.JiraBuild, len(batch))
		for i, b := range batch {
			b.UpdateSequenceNumber = seq
			builds[i] = b
		}
		req := buildsRequest{
			PreventTransitions: true,
			OperationType:      OperationBackfill,
			Properties:         props,
			ProviderMetadata:   map[string]string{"product": "GitHub Actions"},
			Builds:             builds,
		}
		if err := s.post(ctx, client, BuildsPath, req); err != nil {
			return fmt.Errorf("submit builds: %w", err)
		}
	}

	for _, batch := range batches(payload.Deployments) {
		deployments := make([]domain.JiraDeployment, len(batch))
		for i, d := range batch {
			d.UpdateSequenceNumber = seq
			deployments[i] = d
		}
		req := deploymentsRequest{
			PreventTransitions: true,
			OperationType:      OperationBackfill,
			Properties:         props,
			Deployments:        deployments,
		}
		if err := s.post(ctx, client, DeploymentsPath, req); err != nil {
			return fmt.Errorf("submit deployments: %w", err)
		}
	}

	for _, batch := range batches(payload.Vulnerabilities) {
		vulns := make([]domain.JiraVulnerability, len(batch))
		for i, v := range batch {
			v.UpdateSequenceNumber = seq
			vulns[i] = v
		}
		req := securityRequest{
			OperationType:   OperationBackfill,
			Properties:      props,
			Vulnerabilities: vulns,
		}
		if err := s.post(ctx, client, SecurityPath, req); err != nil {
			return fmt.Errorf("submit vulnerabilities: %w", err)
		}
	}

	return nil
}

// submitDevInfo sends branches, commits and pull requests wrapped in
// their repository, one entity kind per request.
func (s *Submitter) submitDevInfo(
	ctx context.Context, client *jira.Client, payload *domain.JiraPayload, seq int64, props map[string]string,
) error {
	if len(payload.Branches)+len(payload.Commits)+len(payload.PullRequests) == 0 {
		return nil
	}
	if payload.Repository == nil {
		return fmt.Errorf("%w: development information needs a repository", domain.ErrInvalidInput)
	}

	repo := func() devInfoRepository {
		return devInfoRepository{
			ID:               payload.Repository.ID,
			Name:             payload.Repository.Name,
			URL:              payload.Repository.URL,
			UpdateSequenceID: seq,
		}
	}
	send := func(kind string, r devInfoRepository) error {
		req := devInfoRequest{
			PreventTransitions: true,
			OperationType:      OperationBackfill,
			Repositories:       []devInfoRepository{r},
			Properties:         props,
		}
		if err := s.post(ctx, client, DevInfoPath, req); err != nil {
			return fmt.Errorf("submit %s: %w", kind, err)
		}
		return nil
	}

	for _, batch := range batches(payload.Branches) {
		r := repo()
		r.Branches = make([]domain.JiraBranch, len(batch))
		for i, b := range batch {
			b.UpdateSequenceID = seq
			b.LastCommit.UpdateSequenceID = seq
			r.Branches[i] = b
		}
		if err := send("branches", r); err != nil {
			return err
		}
	}
	for _, batch := range batches(payload.Commits) {
		r := repo()
		r.Commits = make([]domain.JiraCommit, len(batch))
		for i, c := range batch {
			c.UpdateSequenceID = seq
			r.Commits[i] = c
		}
		if err := send("commits", r); err != nil {
			return err
		}
	}
	for _, batch := range batches(payload.PullRequests) {
		r := repo()
		r.PullRequests = make([]domain.JiraPullRequest, len(batch))
		for i, pr := range batch {
			pr.UpdateSequenceID = seq
			r.PullRequests[i] = pr
		}
		if err := send("pull requests", r); err != nil {
			return err
		}
	}
	return nil
}

// post sends one bulk request and maps the response status to a domain error.
func (s *Submitter) post(ctx context.Context, client *jira.Client, path string, body interface{}) error {
	req, err := client.NewRequestWithContext(ctx, http.MethodPost, path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req, nil)
	if resp == nil {
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	if err != nil {
		return s.statusError(resp.Response)
	}

	var out submitResponse
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); decodeErr == nil {
		if n := out.rejected(); n > 0 || len(out.UnknownIssueKeys) > 0 {
			s.logger.Warn("jira rejected entities",
				zap.String("path", path),
				zap.Int("rejected", n),
				zap.Strings("unknown_issue_keys", out.UnknownIssueKeys),
			)
		}
	}
	return nil
}

func (s *Submitter) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: jira returned %d: %s", domain.ErrPermissionDenied, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: jira returned 404: %s", domain.ErrNotFound, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		resetAt := s.now().Add(time.Minute)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			resetAt = s.now().Add(time.Duration(secs) * time.Second)
		}
		return &RateLimitError{ResetAt: resetAt}
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: jira returned 400: %s", domain.ErrInvalidInput, msg)
	default:
		return fmt.Errorf("%w: jira returned %d: %s", domain.ErrConnection, resp.StatusCode, msg)
	}
}

// batches splits items into batches of at most MaxBatchSize.
func batches[T any](items []T) [][]T {
	var out [][]T
	for len(items) > MaxBatchSize {
		out = append(out, items[:MaxBatchSize])
		items = items[MaxBatchSize:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
