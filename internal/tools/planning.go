package tools

import (
	"context"
	"errors"
	"strconv"

	"github.com/shipmate/shipmate/internal/jira"
	"github.com/shipmate/shipmate/internal/sprint"
)

func jiraTools(client JiraClient) []Tool {
	return []Tool{
		{
			Name: "jira_search",
			Description: "Search Jira issues using JQL (Jira Query Language). Returns issues with key fields: " +
				"summary, status, assignee, priority, story points, labels. The query is restricted to the configured projects. " +
				"Examples: 'sprint in openSprints()', 'assignee = currentUser() AND status != Done'.",
			Params: []Param{
				{Name: "jql", Type: TypeString, Description: `JQL query string, e.g. 'status = "In Progress"'`, Required: true},
				{Name: "fields", Type: TypeStrings, Description: "Specific Jira fields to return. Default: summary, status, assignee, priority, issuetype, story points, labels, created, updated."},
				{Name: "max_results", Type: TypeNumber, Description: "Maximum issues to return. Default: 50, max: 100."},
				refreshParam,
			},
			Target: func(args Args) string {
				return args.Str("jql")
			},
			Handler: func(ctx context.Context, args Args) (any, error) {
				return client.Search(ctx, args.Str("jql"), args.Strings("fields"), args.Int("max_results"), args.Bool("refresh"))
			},
		},
	}
}

func sprintMetricsTool(deps sprint.Deps) Tool {
	return Tool{
		Name: "sprint_metrics",
		Description: "Fetch aggregated sprint metrics: task progress from Jira, code metrics from GitHub/GitLab. " +
			"Shows completion %, velocity, blockers, risks. Requires at least one data source configured.",
		Params: []Param{
			{Name: "board_id", Type: TypeNumber, Description: "Jira board ID. Required if using Jira as data source."},
			{Name: "sprint_id", Type: TypeNumber, Description: "Specific sprint ID. If omitted, uses the active sprint."},
			{Name: "github_repo", Type: TypeString, Description: `GitHub repo in "owner/repo" format for code metrics.`},
			{Name: "gitlab_project", Type: TypeString, Description: "GitLab project path for code metrics."},
			{
				Name:        "source",
				Type:        TypeString,
				Description: `Data sources to query. Default: "all" (uses all configured sources).`,
				Enum:        []string{sprint.SourceAll, sprint.SourceJira, sprint.SourceGitHub, sprint.SourceGitLab},
			},
		},
		Target: func(args Args) string {
			if args.Has("board_id") {
				return "board " + strconv.Itoa(args.Int("board_id"))
			}
			return ""
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			report, err := sprint.Collect(ctx, deps, sprint.Request{
				BoardID:       args.Int("board_id"),
				SprintID:      args.Int("sprint_id"),
				GitHubRepo:    args.Str("github_repo"),
				GitLabProject: args.Str("gitlab_project"),
				Source:        args.Str("source"),
			})
			if errors.Is(err, jira.ErrNoActiveSprint) {
				return nil, NotFoundError{
					Message: "No active sprint found on the specified board.",
					Hint:    "Provide sprint_id if you want a specific sprint.",
				}
			}
			if err != nil {
				return nil, err
			}

			return report, nil
		},
	}
}
