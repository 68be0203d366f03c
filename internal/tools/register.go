package tools

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shipmate/shipmate/internal/buildkite"
	"github.com/shipmate/shipmate/internal/github"
	"github.com/shipmate/shipmate/internal/grafana"
	"github.com/shipmate/shipmate/internal/jira"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/scope"
	"github.com/shipmate/shipmate/internal/sentry"
	"github.com/shipmate/shipmate/internal/sprint"
)

type GitHubClient interface {
	PullRequest(ctx context.Context, owner, repo string, number int, refresh bool) (provider.ReviewResult, error)
	TeamStats(ctx context.Context, owner, repo, since, until string) (github.TeamStats, error)
	sprint.GitHubSource
}

type GitLabClient interface {
	MergeRequest(ctx context.Context, project string, iid int, refresh bool) (provider.ReviewResult, error)
	sprint.GitLabSource
}

type JiraClient interface {
	Search(ctx context.Context, jql string, fields []string, maxResults int, refresh bool) (jira.SearchResult, error)
	sprint.JiraSource
}

type SentryClient interface {
	UnresolvedIssues(ctx context.Context, level, timeRange string, limit int, refresh bool) (sentry.IssuesResult, error)
	IssueDetails(ctx context.Context, issueID string, refresh bool) (sentry.Issue, error)
	LatestEvent(ctx context.Context, issueID string, refresh bool) (sentry.Event, error)
}

type GrafanaClient interface {
	Alerts(ctx context.Context, state string, refresh bool) (grafana.AlertsResult, error)
	AlertRules(ctx context.Context, refresh bool) ([]grafana.AlertRule, error)
	Annotations(ctx context.Context, dashboardUID, timeRange string, limit int, refresh bool) ([]grafana.Annotation, error)
}

type BuildkiteClient interface {
	Builds(ctx context.Context, org, pipeline string, limit int, refresh bool) ([]buildkite.Build, error)
}

// Backends are the provider clients available to register. A nil client
// means its credentials are incomplete; Missing names what is absent, keyed
// by provider.
type Backends struct {
	Guard *scope.Guard

	GitHub    GitHubClient
	GitLab    GitLabClient
	Jira      JiraClient
	Sentry    SentryClient
	Grafana   GrafanaClient
	Buildkite BuildkiteClient

	Missing map[string][]string
}

// Register adds the tools of every provider that has both credentials and
// a configured scope. Each skipped provider is logged with the reason.
func Register(reg *Registry, b Backends) {
	var deps sprint.Deps

	if enabled("github", b.GitHub != nil, b.Guard.HasGitHubScope(), b.Missing, "SHIPMATE_SCOPE_GITHUB_REPOS") {
		add(reg, "github", githubTools(b.GitHub))
		deps.GitHub = b.GitHub
	}

	if enabled("gitlab", b.GitLab != nil, b.Guard.HasGitLabScope(), b.Missing, "SHIPMATE_SCOPE_GITLAB_PROJECTS") {
		add(reg, "gitlab", gitlabTools(b.GitLab))
		deps.GitLab = b.GitLab
	}

	if enabled("jira", b.Jira != nil, b.Guard.HasJiraScope(), b.Missing, "SHIPMATE_SCOPE_JIRA_PROJECTS") {
		add(reg, "jira", jiraTools(b.Jira))
		deps.Jira = b.Jira
	}

	if deps.GitHub != nil || deps.GitLab != nil || deps.Jira != nil {
		add(reg, "sprint", []Tool{sprintMetricsTool(deps)})
	} else {
		log.Warn().Str("provider", "sprint").Str("reason", "no data sources configured").Msg("tools: skipped provider")
	}

	if enabled("sentry", b.Sentry != nil, b.Guard.HasSentryScope(), b.Missing, "SENTRY_ORG, SENTRY_PROJECT") {
		add(reg, "sentry", []Tool{sentryIssuesTool(b.Sentry)})
	}

	// alerting has no allowlist
	if enabled("grafana", b.Grafana != nil, true, b.Missing, "") {
		add(reg, "grafana", []Tool{grafanaAlertsTool(b.Grafana)})
	}

	if enabled("buildkite", b.Buildkite != nil, b.Guard.HasBuildkiteScope(), b.Missing, "SHIPMATE_SCOPE_BUILDKITE_PIPELINES") {
		add(reg, "buildkite", []Tool{buildkiteBuildsTool(b.Buildkite)})
	}

	log.Info().Int("tools", reg.Len()).Msg("tools: registration complete")
}

func enabled(name string, hasClient, hasScope bool, missing map[string][]string, scopeVars string) bool {
	reason := ""
	switch {
	case !hasClient:
		reason = "missing credentials"
		if vars := missing[name]; len(vars) > 0 {
			reason += ": " + strings.Join(vars, ", ")
		}
	case !hasScope:
		reason = "no scope configured: " + scopeVars
	default:
		return true
	}

	log.Warn().Str("provider", name).Str("reason", reason).Msg("tools: skipped provider")
	return false
}

func add(reg *Registry, name string, tools []Tool) {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		reg.Add(t)
		names = append(names, t.Name)
	}
	log.Info().Str("provider", name).Strs("tools", names).Msg("tools: registered")
}
