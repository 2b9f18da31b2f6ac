package github

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// GitHubRateLimit is the installation rate limit (5000/hour).
	GitHubRateLimit = 5000

	// ProactiveRate is the default proactive throttle rate in requests per second.
	ProactiveRate = 10.0

	// MinBuffer is the minimum remaining requests before refusing new calls.
	MinBuffer = 100

	// HeaderRateLimit is the rate limit header.
	HeaderRateLimit = "X-RateLimit-Limit"

	// HeaderRateRemaining is the remaining requests header.
	HeaderRateRemaining = "X-RateLimit-Remaining"

	// HeaderRateReset is the reset timestamp header (Unix seconds).
	HeaderRateReset = "X-RateLimit-Reset"

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"
)

// RateLimiter tracks one GitHub rate-limit bucket. It throttles
// proactively with a token bucket and refuses calls once the reported
// budget drops under the buffer, so the caller can defer the work
// instead of blocking a worker until the reset.
type RateLimiter struct {
	mu        sync.Mutex
	remaining int
	limit     int
	resetTime time.Time
	bucket    *rate.Limiter
	minBuffer int
	now       func() time.Time
}

// NewRateLimiter creates a rate limiter allowing perSecond requests.
// A non-positive rate uses ProactiveRate.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		perSecond = ProactiveRate
	}
	return &RateLimiter{
		remaining: GitHubRateLimit,
		limit:     GitHubRateLimit,
		bucket:    rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		minBuffer: MinBuffer,
		now:       time.Now,
	}
}

// Wait blocks on the token bucket, then fails fast with a
// RateLimitError when the known budget is nearly spent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remaining < r.minBuffer && r.now().Before(r.resetTime) {
		return &RateLimitError{ResetAt: r.resetTime, Remaining: r.remaining, Limit: r.limit}
	}
	return nil
}

// UpdateFromResponse updates rate limit state from response headers.
func (r *RateLimiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if remaining := resp.Header.Get(HeaderRateRemaining); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			r.remaining = val
		}
	}
	if limit := resp.Header.Get(HeaderRateLimit); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			r.limit = val
		}
	}
	if reset := resp.Header.Get(HeaderRateReset); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			r.resetTime = time.Unix(val, 0)
		}
	}
}

// CheckRateLimit checks if the response indicates rate limiting.
// Returns a RateLimitError if rate limited, nil otherwise.
func (r *RateLimiter) CheckRateLimit(resp *http.Response) error {
	if resp == nil {
		return nil
	}

	r.UpdateFromResponse(resp)

	r.mu.Lock()
	resetTime := r.resetTime
	remaining := r.remaining
	limit := r.limit
	r.mu.Unlock()

	if resp.StatusCode != http.StatusTooManyRequests &&
		(resp.StatusCode != http.StatusForbidden || remaining != 0) {
		return nil
	}

	if retryAfter := resp.Header.Get(HeaderRetryAfter); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			resetTime = r.now().Add(time.Duration(seconds) * time.Second)
		}
	}
	return &RateLimitError{ResetAt: resetTime, Remaining: remaining, Limit: limit}
}

// Remaining returns the current remaining requests.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// Limit returns the rate limit.
func (r *RateLimiter) Limit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit
}

// ResetTime returns the rate limit reset time.
func (r *RateLimiter) ResetTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetTime
}

// rateLimitTransport feeds every response into the limiter of the
// bucket it was charged to.
type rateLimitTransport struct {
	base    http.RoundTripper
	core    *RateLimiter
	graphql *RateLimiter
}

func (t *rateLimitTransport) limiterFor(req *http.Request) *RateLimiter {
	if strings.HasSuffix(req.URL.Path, "/graphql") {
		return t.graphql
	}
	return t.core
}

// isRateLimitQuery reports whether req reads the rate limit status.
// GitHub does not charge these calls against any bucket.
func isRateLimitQuery(req *http.Request) bool {
	return strings.HasSuffix(req.URL.Path, "/rate_limit")
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	limiter := t.limiterFor(req)
	if !isRateLimitQuery(req) {
		if err := limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	limiter.UpdateFromResponse(resp)
	return resp, nil
}
