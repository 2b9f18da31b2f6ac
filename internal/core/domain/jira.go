package domain

import "time"

// Jira entity types are the transformed, provider-neutral batches
// shipped to Jira. Each task type produces exactly one of them.

// JiraAuthor identifies the person behind a commit or pull request.
type JiraAuthor struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	URL    string `json:"url,omitempty"`
}

// JiraRepository is the repository wrapper of a devinfo submission.
type JiraRepository struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// JiraCommit is produced by the commit task and embedded in branches.
type JiraCommit struct {
	ID               string     `json:"id"`
	IssueKeys        []string   `json:"issueKeys"`
	Hash             string     `json:"hash"`
	DisplayID        string     `json:"displayId"`
	Message          string     `json:"message"`
	Author           JiraAuthor `json:"author"`
	AuthorTimestamp  time.Time  `json:"authorTimestamp"`
	FileCount        int        `json:"fileCount"`
	URL              string     `json:"url"`
	Flags            []string   `json:"flags,omitempty"`
	UpdateSequenceID int64      `json:"updateSequenceId"`
}

// JiraBranch is produced by the branch task.
type JiraBranch struct {
	ID                   string     `json:"id"`
	IssueKeys            []string   `json:"issueKeys"`
	Name                 string     `json:"name"`
	URL                  string     `json:"url"`
	CreatePullRequestURL string     `json:"createPullRequestUrl"`
	LastCommit           JiraCommit `json:"lastCommit"`
	UpdateSequenceID     int64      `json:"updateSequenceId"`
}

// Pull request statuses understood by Jira.
const (
	PullRequestOpen     = "OPEN"
	PullRequestMerged   = "MERGED"
	PullRequestDeclined = "DECLINED"
	PullRequestDraft    = "DRAFT"
)

// JiraPullRequest is produced by the pull task.
type JiraPullRequest struct {
	ID                   string     `json:"id"`
	IssueKeys            []string   `json:"issueKeys"`
	Status               string     `json:"status"`
	Title                string     `json:"title"`
	Author               JiraAuthor `json:"author"`
	CommentCount         int        `json:"commentCount"`
	SourceBranch         string     `json:"sourceBranch"`
	SourceBranchURL      string     `json:"sourceBranchUrl,omitempty"`
	DestinationBranch    string     `json:"destinationBranch"`
	DestinationBranchURL string     `json:"destinationBranchUrl,omitempty"`
	URL                  string     `json:"url"`
	DisplayID            string     `json:"displayId"`
	LastUpdate           time.Time  `json:"lastUpdate"`
	UpdateSequenceID     int64      `json:"updateSequenceId"`
}

// JiraBuildReference links a build to the commit and ref it ran on.
type JiraBuildReference struct {
	Commit struct {
		ID            string `json:"id"`
		RepositoryURI string `json:"repositoryUri"`
	} `json:"commit"`
	Ref struct {
		Name string `json:"name"`
		URI  string `json:"uri"`
	} `json:"ref"`
}

// Build states understood by Jira.
const (
	BuildPending    = "pending"
	BuildInProgress = "in_progress"
	BuildSuccessful = "successful"
	BuildFailed     = "failed"
	BuildCancelled  = "cancelled"
	BuildUnknown    = "unknown"
)

// JiraBuild is produced by the build task.
type JiraBuild struct {
	SchemaVersion        string               `json:"schemaVersion"`
	PipelineID           string               `json:"pipelineId"`
	BuildNumber          int                  `json:"buildNumber"`
	UpdateSequenceNumber int64                `json:"updateSequenceNumber"`
	DisplayName          string               `json:"displayName"`
	URL                  string               `json:"url"`
	State                string               `json:"state"`
	LastUpdated          time.Time            `json:"lastUpdated"`
	IssueKeys            []string             `json:"issueKeys"`
	References           []JiraBuildReference `json:"references,omitempty"`
}

// JiraDeploymentPipeline identifies the workflow that deployed.
type JiraDeploymentPipeline struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	URL         string `json:"url"`
}

// JiraDeploymentEnvironment identifies the deployment target.
type JiraDeploymentEnvironment struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// JiraAssociation links a deployment to Jira issues.
type JiraAssociation struct {
	AssociationType string   `json:"associationType"`
	Values          []string `json:"values"`
}

// Deployment states understood by Jira.
const (
	DeploymentPending    = "pending"
	DeploymentInProgress = "in_progress"
	DeploymentSuccessful = "successful"
	DeploymentFailed     = "failed"
	DeploymentUnknown    = "unknown"
)

// JiraDeployment is produced by the deployment task.
type JiraDeployment struct {
	SchemaVersion            string                    `json:"schemaVersion"`
	DeploymentSequenceNumber int64                     `json:"deploymentSequenceNumber"`
	UpdateSequenceNumber     int64                     `json:"updateSequenceNumber"`
	Associations             []JiraAssociation         `json:"associations"`
	DisplayName              string                    `json:"displayName"`
	URL                      string                    `json:"url"`
	Description              string                    `json:"description"`
	LastUpdated              time.Time                 `json:"lastUpdated"`
	State                    string                    `json:"state"`
	Pipeline                 JiraDeploymentPipeline    `json:"pipeline"`
	Environment              JiraDeploymentEnvironment `json:"environment"`
}

// IssueKeys returns the keys from the deployment's issue association.
func (d JiraDeployment) IssueKeys() []string {
	for _, a := range d.Associations {
		if a.AssociationType == "issueIdOrKeys" {
			return a.Values
		}
	}
	return nil
}

// JiraVulnerabilityIdentifier is a CVE, GHSA or rule reference.
type JiraVulnerabilityIdentifier struct {
	DisplayName string `json:"displayName"`
	URL         string `json:"url,omitempty"`
}

// JiraSeverity is the Jira severity level of a vulnerability.
type JiraSeverity struct {
	Level string `json:"level"`
}

// JiraVulnerability is produced by the security alert tasks.
type JiraVulnerability struct {
	SchemaVersion        string                        `json:"schemaVersion"`
	ID                   string                        `json:"id"`
	UpdateSequenceNumber int64                         `json:"updateSequenceNumber"`
	ContainerID          string                        `json:"containerId"`
	DisplayName          string                        `json:"displayName"`
	Description          string                        `json:"description"`
	URL                  string                        `json:"url"`
	Type                 string                        `json:"type"`
	IntroducedDate       time.Time                     `json:"introducedDate"`
	LastUpdated          time.Time                     `json:"lastUpdated"`
	Severity             JiraSeverity                  `json:"severity"`
	Identifiers          []JiraVulnerabilityIdentifier `json:"identifiers,omitempty"`
	Status               string                        `json:"status"`
}

// JiraPayload is a batch of transformed entities ready for Jira.
// Only the slice matching the producing task type is populated.
type JiraPayload struct {
	Repository      *JiraRepository
	Branches        []JiraBranch
	Commits         []JiraCommit
	PullRequests    []JiraPullRequest
	Builds          []JiraBuild
	Deployments     []JiraDeployment
	Vulnerabilities []JiraVulnerability
}

// Len returns the number of entities in the payload.
func (p *JiraPayload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Branches) + len(p.Commits) + len(p.PullRequests) +
		len(p.Builds) + len(p.Deployments) + len(p.Vulnerabilities)
}

// IsEmpty reports whether the payload carries no entities.
func (p *JiraPayload) IsEmpty() bool {
	return p.Len() == 0
}

// MergePayloads concatenates each entity slice across payloads in order,
// skipping nil and empty ones. It returns nil when nothing remains.
func MergePayloads(payloads ...*JiraPayload) *JiraPayload {
	var out *JiraPayload
	for _, p := range payloads {
		if p.IsEmpty() {
			continue
		}
		if out == nil {
			out = &JiraPayload{}
		}
		if out.Repository == nil {
			out.Repository = p.Repository
		}
		out.Branches = append(out.Branches, p.Branches...)
		out.Commits = append(out.Commits, p.Commits...)
		out.PullRequests = append(out.PullRequests, p.PullRequests...)
		out.Builds = append(out.Builds, p.Builds...)
		out.Deployments = append(out.Deployments, p.Deployments...)
		out.Vulnerabilities = append(out.Vulnerabilities, p.Vulnerabilities...)
	}
	return out
}
