package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// RateLimitError represents a rate limit exceeded error with reset time.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// RetryAfter reports when the budget is restored.
func (e *RateLimitError) RetryAfter() time.Time {
	return e.ResetAt
}

// Unwrap lets callers match domain.ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// APIError represents a GitHub API error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Unwrap maps the HTTP status to the domain error the backfill
// error handler classifies on.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrPermissionDenied
	case http.StatusNotFound, http.StatusGone:
		return domain.ErrNotFound
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return domain.ErrConnection
	}
}

// GraphQLError is an error reported inside a GraphQL response body.
type GraphQLError struct {
	Message string
}

func (e *GraphQLError) Error() string {
	return "github: graphql: " + e.Message
}

// Unwrap classifies by message since GraphQL reports most failures
// with a 200 status.
func (e *GraphQLError) Unwrap() error {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "could not resolve"), strings.Contains(msg, "404"):
		return domain.ErrNotFound
	case strings.Contains(msg, "rate limit"):
		return domain.ErrRateLimited
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "resource not accessible"), strings.Contains(msg, "bad credentials"):
		return domain.ErrPermissionDenied
	default:
		return domain.ErrConnection
	}
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsForbidden checks if the error indicates a forbidden resource.
func IsForbidden(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
