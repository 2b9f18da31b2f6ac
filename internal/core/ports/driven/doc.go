// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - SubscriptionStore: Subscription persistence
//   - RepoSyncStateStore: Per-repository, per-task progress persistence
//   - Queue: At-least-once message delivery with delays and receive counts
//   - PageFetcher: Fetches and transforms one page of a task
//   - RepositoryLister: Lists an installation's repositories for discovery
//   - JiraSubmitter: Ships transformed batches to Jira
//   - TokenProvider: Installation access tokens
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Cache: Shared short-lived keys. Without it duplicate deliveries are not short-circuited.
//   - RateLimitSource: Provider budget. Without it the rate limiter gate never defers.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
