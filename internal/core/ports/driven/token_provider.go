package driven

import "context"

// TokenProvider provides access tokens for GitHub installations.
// Implementations handle token refresh transparently.
type TokenProvider interface {
	// GetToken returns a valid access token for the installation.
	GetToken(ctx context.Context, installationID int64) (string, error)
}
