package domain

import (
	"regexp"
	"strings"
)

// MaxIssueKeys is the most issue keys Jira accepts on one entity.
const MaxIssueKeys = 100

var issueKeyPattern = regexp.MustCompile(`(?i)(?:^|[^A-Z0-9_])([A-Z][A-Z0-9_]*-[0-9]+)`)

// ExtractIssueKeys finds Jira issue keys in free text. Keys are
// upper-cased, deduplicated in order of appearance and capped at
// MaxIssueKeys.
func ExtractIssueKeys(texts ...string) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, text := range texts {
		for _, m := range issueKeyPattern.FindAllStringSubmatch(text, -1) {
			key := strings.ToUpper(m[1])
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
			if len(keys) == MaxIssueKeys {
				return keys
			}
		}
	}
	return keys
}
