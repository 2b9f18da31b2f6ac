package domain

import "time"

// SyncStatus is the overall backfill status of a subscription.
// The zero value means the subscription has never been synced.
type SyncStatus string

const (
	SyncStatusNone     SyncStatus = ""
	SyncStatusPending  SyncStatus = "PENDING"
	SyncStatusActive   SyncStatus = "ACTIVE"
	SyncStatusComplete SyncStatus = "COMPLETE"
	SyncStatusFailed   SyncStatus = "FAILED"
)

// IsRunnable reports whether queued backfill steps may still act on
// a subscription in this status. Anything else is treated as an
// operator cancellation.
func (s SyncStatus) IsRunnable() bool {
	return s == SyncStatusPending || s == SyncStatusActive
}

// GitHubAppConfig points a subscription at GitHub cloud or a GitHub
// Enterprise Server. A nil config or empty BaseURL means cloud.
type GitHubAppConfig struct {
	GitHubAppID   *int64 `json:"gitHubAppId,omitempty"`
	GitHubBaseURL string `json:"gitHubBaseUrl,omitempty"`
	UUID          string `json:"uuid,omitempty"`
}

// IsEnterprise reports whether the config targets a GitHub Enterprise Server.
func (c *GitHubAppConfig) IsEnterprise() bool {
	return c != nil && c.GitHubBaseURL != ""
}

// Subscription links one Jira host to one GitHub installation.
type Subscription struct {
	ID                   int64
	JiraHost             string
	GitHubInstallationID int64
	GitHubAppID          *int64
	GitHubBaseURL        string
	SyncStatus           SyncStatus
	BackfillSince        *time.Time
	TotalNumberOfRepos   int
	SyncedRepos          int

	// Discovery progress. Discovery runs once per full sync before any
	// repository task is scheduled.
	RepositoryStatus TaskStatus
	RepositoryCursor string

	// Epoch increments each time a backfill is started or reset. Worker
	// writes carry the epoch they read and are dropped once it moves on.
	Epoch int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppConfig returns the GitHub app config carried in queue messages.
func (s Subscription) AppConfig() *GitHubAppConfig {
	if s.GitHubAppID == nil && s.GitHubBaseURL == "" {
		return nil
	}
	return &GitHubAppConfig{GitHubAppID: s.GitHubAppID, GitHubBaseURL: s.GitHubBaseURL}
}

// InstallationContext is everything a provider call needs to act on
// behalf of one installation.
type InstallationContext struct {
	InstallationID int64
	JiraHost       string
	AppConfig      *GitHubAppConfig
}

// IsEnterprise reports whether calls go to a GitHub Enterprise Server.
func (c InstallationContext) IsEnterprise() bool {
	return c.AppConfig.IsEnterprise()
}

// DiscoveryProgress is the part of a subscription discovery writes.
type DiscoveryProgress struct {
	Status     TaskStatus
	Cursor     string
	TotalRepos int
}
