package tools

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shipmate/shipmate/internal/provider"
)

var (
	focusParam = Param{
		Name:        "focus",
		Type:        TypeStrings,
		Description: "Optional focus areas: security, performance, architecture, testing, correctness",
	}
	refreshParam = Param{
		Name:        "refresh",
		Type:        TypeBoolean,
		Description: "Force refresh, bypass cache. Default: false.",
	}
)

// reviewResponse carries the requested focus areas alongside the review
// context, for the reviewer to apply.
type reviewResponse struct {
	provider.ReviewResult
	Focus []string `json:"focus,omitempty"`
}

func githubTools(client GitHubClient) []Tool {
	return []Tool{
		{
			Name: "github_pr_review",
			Description: "Fetch full GitHub PR context: metadata, files changed, CI checks, review comments, in a single call. " +
				"Results are cached; use refresh to bypass the cache.",
			Params: []Param{
				{Name: "pr_number", Type: TypeNumber, Description: "Pull request number", Required: true},
				{Name: "repo", Type: TypeString, Description: `Repository in "owner/repo" format.`, Required: true},
				focusParam,
				refreshParam,
			},
			Target: func(args Args) string {
				return args.Str("repo") + "#" + strconv.Itoa(args.Int("pr_number"))
			},
			Handler: func(ctx context.Context, args Args) (any, error) {
				owner, repo, err := parseRepoArg(args, "repo")
				if err != nil {
					return nil, err
				}

				result, err := client.PullRequest(ctx, owner, repo, args.Int("pr_number"), args.Bool("refresh"))
				if err != nil {
					return nil, err
				}

				return reviewResponse{ReviewResult: result, Focus: args.Strings("focus")}, nil
			},
		},
		{
			Name: "github_team_stats",
			Description: "Fetch team contribution stats from GitHub: PRs authored/reviewed per contributor, " +
				"average merge time, lines changed. Useful for sprint retros and workload analysis.",
			Params: []Param{
				{Name: "repo", Type: TypeString, Description: `Repository in "owner/repo" format.`, Required: true},
				{Name: "period", Type: TypeString, Description: `Period start date in YYYY-MM-DD format, e.g. "2026-01-01".`, Required: true},
				{Name: "until", Type: TypeString, Description: "Optional end date in YYYY-MM-DD format. Defaults to today."},
			},
			Target: func(args Args) string {
				return args.Str("repo")
			},
			Handler: func(ctx context.Context, args Args) (any, error) {
				owner, repo, err := parseRepoArg(args, "repo")
				if err != nil {
					return nil, err
				}
				if err := checkDate(args, "period"); err != nil {
					return nil, err
				}
				if err := checkDate(args, "until"); err != nil {
					return nil, err
				}

				return client.TeamStats(ctx, owner, repo, args.Str("period"), args.Str("until"))
			},
		},
	}
}

func gitlabTools(client GitLabClient) []Tool {
	return []Tool{
		{
			Name: "gitlab_mr_review",
			Description: "Fetch full GitLab MR context: metadata, diff stats, pipeline status, discussions, approvals, in a single call. " +
				"Results are cached; use refresh to bypass the cache.",
			Params: []Param{
				{Name: "mr_number", Type: TypeNumber, Description: "Merge request IID (the number shown in the UI, e.g. !15)", Required: true},
				{Name: "project", Type: TypeString, Description: `GitLab project full path, e.g. "group/subgroup/project-name".`, Required: true},
				focusParam,
				refreshParam,
			},
			Target: func(args Args) string {
				return args.Str("project") + "!" + strconv.Itoa(args.Int("mr_number"))
			},
			Handler: func(ctx context.Context, args Args) (any, error) {
				result, err := client.MergeRequest(ctx, args.Str("project"), args.Int("mr_number"), args.Bool("refresh"))
				if err != nil {
					return nil, err
				}

				return reviewResponse{ReviewResult: result, Focus: args.Strings("focus")}, nil
			},
		},
	}
}

func parseRepoArg(args Args, name string) (string, string, error) {
	owner, repo, err := provider.ParseRepo(args.Str(name))
	if err != nil {
		return "", "", ArgumentError{Name: name, Reason: err.Error()}
	}
	return owner, repo, nil
}

func checkDate(args Args, name string) error {
	value := args.Str(name)
	if value == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, value); err != nil {
		return ArgumentError{Name: name, Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", value)}
	}
	return nil
}
