// Package connectors holds the provider integrations. The github package
// reads installation data page by page and transforms it into Jira
// entities; the jira package submits those entities to a Jira site.
package connectors
