package driving

import "context"

// Scheduler runs periodic maintenance such as cache expiry and
// dead-letter cleanup.
type Scheduler interface {
	// Start registers the maintenance jobs and returns. Jobs run in the
	// background until Stop is called.
	Start(ctx context.Context) error

	// Stop waits for running jobs to finish.
	Stop() error
}
