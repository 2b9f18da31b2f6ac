// Package file loads the jira-sync TOML configuration.
//
// Load reads ~/.jira-sync/config.toml (or the path given with --config)
// over DefaultConfig and applies JIRA_SYNC_* environment overrides.
// Watcher re-reads the file on change so that rate limit settings can
// be tuned without restarting workers.
package file
