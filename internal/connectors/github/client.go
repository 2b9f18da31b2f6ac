package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v80/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxGraphQLPageSize is the largest page GitHub's GraphQL API serves.
	MaxGraphQLPageSize = 100
)

// Client wraps the REST and GraphQL clients of one installation.
type Client struct {
	gh          *gh.Client
	graphql     *githubv4.Client
	rateLimiter *RateLimiter
	graphLimit  *RateLimiter
}

// GitHub returns the underlying go-github client.
func (c *Client) GitHub() *gh.Client {
	return c.gh
}

// GraphQL returns the underlying githubv4 client.
func (c *Client) GraphQL() *githubv4.Client {
	return c.graphql
}

// RateLimiter returns the REST bucket limiter.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%s: %w", operation, &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		})
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		resetAt := time.Now().Add(time.Minute)
		if abuseErr.RetryAfter != nil {
			resetAt = time.Now().Add(*abuseErr.RetryAfter)
		}
		return fmt.Errorf("%s: %w", operation, &RateLimitError{
			ResetAt:   resetAt,
			Remaining: c.rateLimiter.Remaining(),
			Limit:     c.rateLimiter.Limit(),
		})
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
		}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return fmt.Errorf("%s: %w", operation, apiErr)
	}

	return wrapTransportError(err, operation)
}

// wrapGraphQLError converts githubv4 errors to our error types.
func (c *Client) wrapGraphQLError(err error, operation string) error {
	if err == nil {
		return nil
	}
	var ours *RateLimitError
	if errors.As(err, &ours) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return wrapTransportError(err, operation)
	}
	return fmt.Errorf("%s: %w", operation, &GraphQLError{Message: err.Error()})
}

// wrapTransportError keeps limiter and context errors recognisable and
// tags everything else as a connection failure.
func wrapTransportError(err error, operation string) error {
	var ours *RateLimitError
	if errors.As(err, &ours) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return fmt.Errorf("%s: %w: %w", operation, domain.ErrConnection, err)
}

// installationTokenSource asks the token provider for a fresh token on
// every request. Providers cache and refresh on their own.
type installationTokenSource struct {
	tokens         driven.TokenProvider
	installationID int64
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.tokens.GetToken(context.Background(), s.installationID)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// ClientFactory builds one Client per installation and host, caching
// them so rate-limit state survives across messages.
type ClientFactory struct {
	tokens    driven.TokenProvider
	transport http.RoundTripper
	apiURL    string
	rate      float64
	timeout   time.Duration

	mu      sync.Mutex
	clients map[clientKey]*Client
}

type clientKey struct {
	installationID int64
	baseURL        string
}

// FactoryOption configures a ClientFactory.
type FactoryOption func(*ClientFactory)

// WithTransport sets the base transport under auth and rate limiting.
func WithTransport(rt http.RoundTripper) FactoryOption {
	return func(f *ClientFactory) { f.transport = rt }
}

// WithAPIURL points cloud clients at a different REST root. GraphQL is
// served from <apiURL>/graphql.
func WithAPIURL(apiURL string) FactoryOption {
	return func(f *ClientFactory) { f.apiURL = strings.TrimSuffix(apiURL, "/") + "/" }
}

// WithRequestRate sets the proactive request rate per installation.
func WithRequestRate(perSecond float64) FactoryOption {
	return func(f *ClientFactory) { f.rate = perSecond }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) FactoryOption {
	return func(f *ClientFactory) { f.timeout = d }
}

// NewClientFactory creates a factory that authenticates with tokens.
func NewClientFactory(tokens driven.TokenProvider, opts ...FactoryOption) *ClientFactory {
	f := &ClientFactory{
		tokens:  tokens,
		rate:    ProactiveRate,
		timeout: DefaultTimeout,
		clients: make(map[clientKey]*Client),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Client returns the client for an installation, creating it on first use.
func (f *ClientFactory) Client(inst domain.InstallationContext) (*Client, error) {
	key := clientKey{installationID: inst.InstallationID}
	if inst.IsEnterprise() {
		key.baseURL = strings.TrimSuffix(inst.AppConfig.GitHubBaseURL, "/")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[key]; ok {
		return c, nil
	}

	c, err := f.newClient(key)
	if err != nil {
		return nil, err
	}
	f.clients[key] = c
	return c, nil
}

func (f *ClientFactory) newClient(key clientKey) (*Client, error) {
	c := &Client{
		rateLimiter: NewRateLimiter(f.rate),
		graphLimit:  NewRateLimiter(f.rate),
	}

	hc := &http.Client{
		Timeout: f.timeout,
		Transport: &oauth2.Transport{
			Source: &installationTokenSource{tokens: f.tokens, installationID: key.installationID},
			Base: &rateLimitTransport{
				base:    f.transport,
				core:    c.rateLimiter,
				graphql: c.graphLimit,
			},
		},
	}

	switch {
	case key.baseURL != "":
		rest, err := gh.NewClient(hc).WithEnterpriseURLs(key.baseURL, key.baseURL)
		if err != nil {
			return nil, fmt.Errorf("configure enterprise client: %w", err)
		}
		c.gh = rest
		c.graphql = githubv4.NewEnterpriseClient(key.baseURL+"/api/graphql", hc)
	case f.apiURL != "":
		rest := gh.NewClient(hc)
		base, err := url.Parse(f.apiURL)
		if err != nil {
			return nil, fmt.Errorf("parse api url: %w", err)
		}
		rest.BaseURL = base
		c.gh = rest
		c.graphql = githubv4.NewEnterpriseClient(f.apiURL+"graphql", hc)
	default:
		c.gh = gh.NewClient(hc)
		c.graphql = githubv4.NewClient(hc)
	}
	return c, nil
}
