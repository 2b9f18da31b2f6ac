// Package jira submits transformed backfill payloads to Jira's bulk
// development information APIs.
//
// Branches, commits and pull requests go to the devinfo API wrapped in
// their repository. Builds, deployments and vulnerabilities go to their
// own endpoints. Every request is tagged as a BACKFILL operation with
// transitions disabled, and is split into batches of MaxBatchSize.
//
// Hosts with a configured shared secret are called with a Connect JWT;
// all others use basic auth with an API token.
package jira
