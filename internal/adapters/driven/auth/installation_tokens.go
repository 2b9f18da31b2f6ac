package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// Ensure InstallationTokens implements the TokenProvider interface.
var _ driven.TokenProvider = (*InstallationTokens)(nil)

// InstallationTokens serves configured access tokens per installation.
// Installations without their own token share the default token.
// Tokens are static and never refreshed.
type InstallationTokens struct {
	mu       sync.RWMutex
	fallback string
	tokens   map[int64]string
}

// NewInstallationTokens creates a provider. fallback may be empty.
func NewInstallationTokens(fallback string, tokens map[int64]string) *InstallationTokens {
	p := &InstallationTokens{}
	p.Replace(fallback, tokens)
	return p
}

// GetToken returns the token for an installation.
func (p *InstallationTokens) GetToken(ctx context.Context, installationID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if token, ok := p.tokens[installationID]; ok && token != "" {
		return token, nil
	}
	if p.fallback != "" {
		return p.fallback, nil
	}
	return "", fmt.Errorf("%w: no token for installation %d", domain.ErrPermissionDenied, installationID)
}

// Replace swaps in a new token set, e.g. after a config reload.
func (p *InstallationTokens) Replace(fallback string, tokens map[int64]string) {
	copied := make(map[int64]string, len(tokens))
	for id, token := range tokens {
		copied[id] = token
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = fallback
	p.tokens = copied
}

// Has reports whether any token is configured for the installation.
func (p *InstallationTokens) Has(installationID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fallback != "" || p.tokens[installationID] != ""
}
