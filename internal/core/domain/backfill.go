package domain

import "time"

// BackfillRequest asks for a new backfill of a subscription.
type BackfillRequest struct {
	SyncType        SyncType   `json:"syncType"`
	CommitsFromDate *time.Time `json:"commitsFromDate,omitempty"`
	TargetTasks     []TaskType `json:"targetTasks,omitempty"`
}

// ResyncRequest resets tasks back to PENDING and re-runs them.
// RepoID zero means every repository. FailedOnly restricts the reset
// to tasks that ended FAILED.
type ResyncRequest struct {
	RepoID      int64      `json:"repoId,omitempty"`
	TargetTasks []TaskType `json:"targetTasks,omitempty"`
	FailedOnly  bool       `json:"failedOnly,omitempty"`
}

// SyncReport summarises a subscription's backfill for operators.
type SyncReport struct {
	Subscription Subscription
	Repos        []RepoSyncState
	Tasks        []TaskType
	Complete     int
	Failed       int
}

// RateLimitResource is one provider rate-limit bucket.
type RateLimitResource struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// UsedPercent is the share of the bucket already consumed.
func (r RateLimitResource) UsedPercent() float64 {
	if r.Limit <= 0 {
		return 0
	}
	return float64(r.Limit-r.Remaining) * 100 / float64(r.Limit)
}

// RateLimitStatus is the provider's current budget.
type RateLimitStatus struct {
	Core    RateLimitResource
	GraphQL RateLimitResource
}

// RateLimitDecision is the result of the rate limiter gate.
type RateLimitDecision struct {
	Exceeded       bool
	ResetInSeconds int
}

// SubmitOptions tags a downstream submission.
type SubmitOptions struct {
	InstallationID   int64
	UpdateSequenceID int64
}
