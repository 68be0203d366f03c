package provider

import (
	"fmt"
	"strings"
)

// ReviewResult is the review-ready summary of a pull or merge request.
type ReviewResult struct {
	Title        string          `json:"title"`
	Author       string          `json:"author"`
	State        string          `json:"state"`
	URL          string          `json:"url"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	Additions    int             `json:"additions"`
	Deletions    int             `json:"deletions"`
	ChangedFiles int             `json:"changed_files"`
	Commits      int             `json:"commits"`
	Labels       []string        `json:"labels"`
	Files        []FileChange    `json:"files"`
	Reviews      []ReviewComment `json:"reviews"`
	Checks       []CheckResult   `json:"checks"`
}

type FileChange struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Status    string `json:"status"`
}

type ReviewComment struct {
	Author      string `json:"author"`
	State       string `json:"state"`
	Body        string `json:"body"`
	SubmittedAt string `json:"submitted_at"`
}

type CheckResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
}

// MergedCount summarizes the changes merged into a repository since a date.
type MergedCount struct {
	Count    int `json:"count"`
	AvgLines int `json:"avg_lines"`
}

// ParseRepo splits "owner/repo" into its two parts. Both parts must be
// present, and there must be exactly one separator.
func ParseRepo(full string) (owner, repo string, err error) {
	parts := strings.Split(full, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q: expected \"owner/repo\"", full)
	}

	return parts[0], parts[1], nil
}
