package github

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v80/github"
	"github.com/rs/zerolog/log"
	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/provider"
)

// PullRequest returns the review context of a pull request: metadata,
// changed files, submitted reviews and the check runs of the head commit.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, number int, refresh bool) (provider.ReviewResult, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "github.pull_request",
		Key:       cache.Key("gh", "pr", repoKey(owner, repo), strconv.Itoa(number)),
		TTL:       cache.TTLMetadata,
		Refresh:   refresh,
		Authorize: func() error { return c.guard.CheckGitHub(owner, repo) },
	}, func(ctx context.Context) (provider.ReviewResult, error) {
		return c.fetchPullRequest(ctx, owner, repo, number)
	})
}

func (c *Client) fetchPullRequest(ctx context.Context, owner, repo string, number int) (provider.ReviewResult, error) {
	pr, resp, err := c.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return provider.ReviewResult{}, upstreamError(err)
	}

	log.Debug().Int("limit", resp.Rate.Limit).Int("remaining", resp.Rate.Remaining).Msg("github API rate")

	files, _, err := c.client.PullRequests.ListFiles(ctx, owner, repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return provider.ReviewResult{}, upstreamError(err)
	}

	reviews, _, err := c.client.PullRequests.ListReviews(ctx, owner, repo, number, &github.ListOptions{PerPage: 50})
	if err != nil {
		return provider.ReviewResult{}, upstreamError(err)
	}

	var checkRuns []*github.CheckRun
	if sha := pr.GetHead().GetSHA(); sha != "" {
		runs, _, err := c.client.Checks.ListCheckRunsForRef(ctx, owner, repo, sha, &github.ListCheckRunsOptions{
			ListOptions: github.ListOptions{PerPage: 50},
		})
		if err != nil {
			return provider.ReviewResult{}, upstreamError(err)
		}
		checkRuns = runs.CheckRuns
	}

	return reviewResult(pr, files, reviews, checkRuns), nil
}

func reviewResult(pr *github.PullRequest, files []*github.CommitFile, reviews []*github.PullRequestReview, checkRuns []*github.CheckRun) provider.ReviewResult {
	result := provider.ReviewResult{
		Title:        pr.GetTitle(),
		Author:       login(pr.GetUser()),
		State:        pullRequestState(pr),
		URL:          pr.GetHTMLURL(),
		CreatedAt:    formatTimestamp(pr.GetCreatedAt()),
		UpdatedAt:    formatTimestamp(pr.GetUpdatedAt()),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		Commits:      pr.GetCommits(),
		Labels:       make([]string, 0, len(pr.Labels)),
		Files:        make([]provider.FileChange, 0, len(files)),
		Reviews:      []provider.ReviewComment{},
		Checks:       make([]provider.CheckResult, 0, len(checkRuns)),
	}

	for _, l := range pr.Labels {
		result.Labels = append(result.Labels, l.GetName())
	}

	for _, f := range files {
		result.Files = append(result.Files, provider.FileChange{
			Path:      f.GetFilename(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Status:    f.GetStatus(),
		})
	}

	for _, r := range reviews {
		// bare comment reviews carry nothing for a reviewer to act on
		if r.GetBody() == "" && r.GetState() == "COMMENTED" {
			continue
		}
		result.Reviews = append(result.Reviews, provider.ReviewComment{
			Author:      login(r.GetUser()),
			State:       r.GetState(),
			Body:        r.GetBody(),
			SubmittedAt: formatTimestamp(r.GetSubmittedAt()),
		})
	}

	for _, run := range checkRuns {
		result.Checks = append(result.Checks, provider.CheckResult{
			Name:       run.GetName(),
			Status:     run.GetStatus(),
			Conclusion: run.GetConclusion(),
		})
	}

	return result
}

func pullRequestState(pr *github.PullRequest) string {
	if pr.GetMerged() {
		return "MERGED"
	}
	return strings.ToUpper(pr.GetState())
}

func login(u *github.User) string {
	if l := u.GetLogin(); l != "" {
		return l
	}
	return "unknown"
}

func formatTimestamp(ts github.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
