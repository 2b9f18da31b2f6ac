package github

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// Jira vulnerability types.
const (
	VulnerabilityTypeSCA  = "sca"
	VulnerabilityTypeSAST = "sast"
)

// Jira vulnerability statuses.
const (
	VulnerabilityOpen    = "open"
	VulnerabilityClosed  = "closed"
	VulnerabilityIgnored = "ignored"
	VulnerabilityUnknown = "unknown"
)

// Jira severity levels.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityUnknown  = "unknown"
)

// featureUnavailable reports whether an alert listing failed because
// the feature is off for the repository. GitHub answers 403 or 404.
func featureUnavailable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 403 || apiErr.StatusCode == 404
}

func alertListOptions(cursor domain.Cursor) gh.ListOptions {
	return gh.ListOptions{Page: cursor.PageNo, PerPage: cursor.PerPage}
}

// fetchDependabotAlerts lists one page of Dependabot alerts. A
// repository without Dependabot yields an exhausted page.
func fetchDependabotAlerts(ctx context.Context, client *Client, repo domain.Repository, cursor domain.Cursor) (*domain.Page, error) {
	alerts, _, err := client.gh.Dependabot.ListRepoAlerts(ctx, repo.Owner, repo.Name, &gh.ListAlertsOptions{
		ListOptions: alertListOptions(cursor),
	})
	if err != nil {
		wrapped := client.wrapError(err, "list dependabot alerts")
		if featureUnavailable(wrapped) {
			return &domain.Page{}, nil
		}
		return nil, wrapped
	}

	payload := newPayload(repo)
	edges := make([]domain.Edge, 0, len(alerts))
	for _, a := range alerts {
		edges = append(edges, restEdge(cursor, strconv.Itoa(a.GetNumber())))
		payload.Vulnerabilities = append(payload.Vulnerabilities, dependabotVulnerability(repo, a))
	}
	return finishPage(edges, payload), nil
}

func dependabotVulnerability(repo domain.Repository, a *gh.DependabotAlert) domain.JiraVulnerability {
	advisory := a.GetSecurityAdvisory()
	v := domain.JiraVulnerability{
		SchemaVersion:  jiraSchemaVersion,
		ID:             fmt.Sprintf("d-%d-%d", repo.ID, a.GetNumber()),
		ContainerID:    strconv.FormatInt(repo.ID, 10),
		DisplayName:    advisory.GetSummary(),
		Description:    advisory.GetDescription(),
		URL:            a.GetHTMLURL(),
		Type:           VulnerabilityTypeSCA,
		IntroducedDate: a.GetCreatedAt().Time,
		LastUpdated:    a.GetUpdatedAt().Time,
		Severity:       domain.JiraSeverity{Level: severityLevel(advisory.GetSeverity())},
		Status:         alertStatus(a.GetState()),
	}
	if id := advisory.GetGHSAID(); id != "" {
		v.Identifiers = append(v.Identifiers, domain.JiraVulnerabilityIdentifier{
			DisplayName: id,
			URL:         "https://github.com/advisories/" + id,
		})
	}
	if id := advisory.GetCVEID(); id != "" {
		v.Identifiers = append(v.Identifiers, domain.JiraVulnerabilityIdentifier{
			DisplayName: id,
			URL:         "https://www.cve.org/CVERecord?id=" + id,
		})
	}
	return v
}

// fetchSecretScanningAlerts lists one page of secret scanning alerts.
func fetchSecretScanningAlerts(ctx context.Context, client *Client, repo domain.Repository, cursor domain.Cursor) (*domain.Page, error) {
	alerts, _, err := client.gh.SecretScanning.ListAlertsForRepo(ctx, repo.Owner, repo.Name, &gh.SecretScanningAlertListOptions{
		ListOptions: alertListOptions(cursor),
	})
	if err != nil {
		wrapped := client.wrapError(err, "list secret scanning alerts")
		if featureUnavailable(wrapped) {
			return &domain.Page{}, nil
		}
		return nil, wrapped
	}

	payload := newPayload(repo)
	edges := make([]domain.Edge, 0, len(alerts))
	for _, a := range alerts {
		edges = append(edges, restEdge(cursor, strconv.Itoa(a.GetNumber())))
		payload.Vulnerabilities = append(payload.Vulnerabilities, domain.JiraVulnerability{
			SchemaVersion:  jiraSchemaVersion,
			ID:             fmt.Sprintf("s-%d-%d", repo.ID, a.GetNumber()),
			ContainerID:    strconv.FormatInt(repo.ID, 10),
			DisplayName:    a.GetSecretTypeDisplayName(),
			Description:    "Secret of type " + a.GetSecretType() + " detected in the repository.",
			URL:            a.GetHTMLURL(),
			Type:           VulnerabilityTypeSAST,
			IntroducedDate: a.GetCreatedAt().Time,
			LastUpdated:    secretUpdated(a),
			Severity:       domain.JiraSeverity{Level: SeverityCritical},
			Status:         secretStatus(a.GetState(), a.GetResolution()),
		})
	}
	return finishPage(edges, payload), nil
}

func secretUpdated(a *gh.SecretScanningAlert) time.Time {
	if a.UpdatedAt != nil {
		return a.GetUpdatedAt().Time
	}
	return a.GetCreatedAt().Time
}

// fetchCodeScanningAlerts lists one page of code scanning alerts.
func fetchCodeScanningAlerts(ctx context.Context, client *Client, repo domain.Repository, cursor domain.Cursor) (*domain.Page, error) {
	alerts, _, err := client.gh.CodeScanning.ListAlertsForRepo(ctx, repo.Owner, repo.Name, &gh.AlertListOptions{
		ListOptions: alertListOptions(cursor),
	})
	if err != nil {
		wrapped := client.wrapError(err, "list code scanning alerts")
		if featureUnavailable(wrapped) {
			return &domain.Page{}, nil
		}
		return nil, wrapped
	}

	payload := newPayload(repo)
	edges := make([]domain.Edge, 0, len(alerts))
	for _, a := range alerts {
		edges = append(edges, restEdge(cursor, strconv.Itoa(a.GetNumber())))
		rule := a.GetRule()
		v := domain.JiraVulnerability{
			SchemaVersion:  jiraSchemaVersion,
			ID:             fmt.Sprintf("c-%d-%d", repo.ID, a.GetNumber()),
			ContainerID:    strconv.FormatInt(repo.ID, 10),
			DisplayName:    rule.GetDescription(),
			Description:    rule.GetFullDescription(),
			URL:            a.GetHTMLURL(),
			Type:           VulnerabilityTypeSAST,
			IntroducedDate: a.GetCreatedAt().Time,
			LastUpdated:    a.GetUpdatedAt().Time,
			Severity:       domain.JiraSeverity{Level: codeScanningSeverity(rule)},
			Status:         alertStatus(a.GetState()),
		}
		if id := rule.GetID(); id != "" {
			v.Identifiers = []domain.JiraVulnerabilityIdentifier{{DisplayName: id}}
		}
		payload.Vulnerabilities = append(payload.Vulnerabilities, v)
	}
	return finishPage(edges, payload), nil
}

func severityLevel(s string) string {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning":
		return SeverityMedium
	case "low", "note":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

func codeScanningSeverity(rule *gh.Rule) string {
	if level := rule.GetSecuritySeverityLevel(); level != "" {
		return severityLevel(level)
	}
	return severityLevel(rule.GetSeverity())
}

func alertStatus(state string) string {
	switch state {
	case "open":
		return VulnerabilityOpen
	case "fixed", "closed":
		return VulnerabilityClosed
	case "dismissed", "auto_dismissed":
		return VulnerabilityIgnored
	default:
		return VulnerabilityUnknown
	}
}

func secretStatus(state, resolution string) string {
	if state == "open" {
		return VulnerabilityOpen
	}
	if state != "resolved" {
		return VulnerabilityUnknown
	}
	switch resolution {
	case "false_positive", "wont_fix", "used_in_tests":
		return VulnerabilityIgnored
	default:
		return VulnerabilityClosed
	}
}
