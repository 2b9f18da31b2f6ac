// Package github reads backfill data from GitHub and transforms it into
// Jira development entities.
//
// # Architecture
//
// The package implements three driven ports:
//
//   - [driven.PageFetcher]: one page of a repository task
//   - [driven.RepositoryLister]: the installation's repositories for discovery
//   - [driven.RateLimitSource]: the installation's current budget
//
// A ClientFactory builds one Client per installation and GitHub host.
// Enterprise Server installations are reached through their base URL.
//
// # Pagination
//
// Branches and commits are read through the GraphQL API and resume from
// the provider's opaque edge cursor. Pull requests, workflow runs,
// deployments and security alerts are read through the REST API and
// resume from a {perPage, pageNo} cursor, which lets the scheduler fetch
// several pages in parallel.
//
// # Rate Limiting
//
// Each client tracks its REST and GraphQL buckets separately:
//
//  1. Proactive throttling: a token bucket spaces out requests.
//
//  2. Reactive handling: X-RateLimit-* headers update the known budget.
//     Once it drops under MinBuffer, requests fail with a RateLimitError
//     carrying the reset time, so the message can be deferred instead of
//     blocking a worker.
//
// # Errors
//
// API errors unwrap to the domain sentinels: 401 and 403 to
// domain.ErrPermissionDenied, 404 to domain.ErrNotFound, rate limits to
// domain.ErrRateLimited and everything else to domain.ErrConnection.
package github
