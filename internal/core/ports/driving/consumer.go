package driving

import (
	"context"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// MessageHandler processes one delivered queue message and decides
// whether the queue should drop or redeliver it.
type MessageHandler interface {
	Handle(ctx context.Context, msg domain.QueueMessage) domain.Outcome
}
