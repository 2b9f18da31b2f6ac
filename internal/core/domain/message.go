package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// BackfillMessage is the queue payload driving one backfill step.
type BackfillMessage struct {
	SubscriptionID  int64            `json:"subscriptionId"`
	InstallationID  int64            `json:"installationId"`
	JiraHost        string           `json:"jiraHost"`
	SyncType        SyncType         `json:"syncType,omitempty"`
	CommitsFromDate *time.Time       `json:"commitsFromDate,omitempty"`
	TargetTasks     []TaskType       `json:"targetTasks,omitempty"`
	StartTime       time.Time        `json:"startTime"`
	GitHubAppConfig *GitHubAppConfig `json:"gitHubAppConfig,omitempty"`
}

// DecodeBackfillMessage parses and validates a queue message body.
func DecodeBackfillMessage(body []byte) (BackfillMessage, error) {
	var msg BackfillMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return BackfillMessage{}, fmt.Errorf("%w: decode backfill message: %v", ErrInvalidInput, err)
	}
	if err := msg.Validate(); err != nil {
		return BackfillMessage{}, err
	}
	return msg, nil
}

// Encode serializes the message for the queue.
func (m BackfillMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Validate checks the fields every consumer relies on.
func (m BackfillMessage) Validate() error {
	if m.SubscriptionID <= 0 {
		return fmt.Errorf("%w: subscriptionId is required", ErrInvalidInput)
	}
	if m.InstallationID <= 0 {
		return fmt.Errorf("%w: installationId is required", ErrInvalidInput)
	}
	if m.JiraHost == "" {
		return fmt.Errorf("%w: jiraHost is required", ErrInvalidInput)
	}
	switch m.SyncType {
	case "", SyncTypeFull, SyncTypePartial:
	default:
		return fmt.Errorf("%w: unknown syncType %q", ErrInvalidInput, m.SyncType)
	}
	return nil
}

// Wants reports whether the message targets the task type.
// An empty TargetTasks list means every task type.
func (m BackfillMessage) Wants(t TaskType) bool {
	return len(m.TargetTasks) == 0 || slices.Contains(m.TargetTasks, t)
}

// Installation returns the provider context the message acts for.
func (m BackfillMessage) Installation() InstallationContext {
	return InstallationContext{
		InstallationID: m.InstallationID,
		JiraHost:       m.JiraHost,
		AppConfig:      m.GitHubAppConfig,
	}
}

// Fingerprint is a stable digest of the logical message. Volatile
// fields (StartTime) are left out so two deliveries of the same step
// collide.
func (m BackfillMessage) Fingerprint() string {
	stable := m
	stable.StartTime = time.Time{}
	if stable.CommitsFromDate != nil {
		t := stable.CommitsFromDate.UTC()
		stable.CommitsFromDate = &t
	}
	if len(stable.TargetTasks) > 0 {
		stable.TargetTasks = slices.Clone(stable.TargetTasks)
		slices.Sort(stable.TargetTasks)
	}
	b, _ := json.Marshal(stable)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// QueueMessage is a delivered message with the queue's delivery metadata.
type QueueMessage struct {
	ID              string
	Queue           string
	Body            []byte
	ReceiveCount    int
	MaxReceiveCount int
}

// LastAttempt reports whether the queue will not redeliver this message again.
func (m QueueMessage) LastAttempt() bool {
	return m.MaxReceiveCount > 0 && m.ReceiveCount >= m.MaxReceiveCount
}

// Outcome is the message-level decision returned by the consumer.
// IsFailure=false acknowledges the message. IsFailure=true with
// Retryable=true asks the queue to redeliver after RetryDelaySec.
type Outcome struct {
	IsFailure     bool
	Retryable     bool
	RetryDelaySec int
}

// Ack is the outcome that removes the message.
func Ack() Outcome {
	return Outcome{}
}

// RetryAfter is the outcome that redelivers the message after a delay.
func RetryAfter(delaySec int) Outcome {
	return Outcome{IsFailure: true, Retryable: true, RetryDelaySec: delaySec}
}
