package tools_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shipmate/shipmate/internal/grafana"
	"github.com/shipmate/shipmate/internal/jira"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/sprint"
	"github.com/shipmate/shipmate/internal/testhelpers"
	"github.com/shipmate/shipmate/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registered(t *testing.T, fake *fakeClients) *tools.Registry {
	t.Helper()
	testhelpers.SetupLogger(t)

	reg := tools.NewRegistry()
	tools.Register(reg, tools.Backends{
		Guard:     fullScope(),
		GitHub:    fake,
		GitLab:    fake,
		Jira:      fake,
		Sentry:    fake,
		Grafana:   fake,
		Buildkite: fake,
	})
	return reg
}

func invoke(t *testing.T, reg *tools.Registry, name string, args map[string]any) (map[string]any, error) {
	t.Helper()

	result, err := reg.Invoke(context.Background(), name, tools.TransportHTTP, args)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out, nil
}

func TestGitHubPRReview(t *testing.T) {
	fake := &fakeClients{review: provider.ReviewResult{Title: "Add widget"}}
	reg := registered(t, fake)

	out, err := invoke(t, reg, "github_pr_review", map[string]any{
		"repo":      "acme/widget",
		"pr_number": 42.0,
		"focus":     []any{"security"},
		"refresh":   true,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"acme", "widget", 42, true}, fake.args)
	assert.Equal(t, "Add widget", out["title"])
	assert.Equal(t, []any{"security"}, out["focus"])
}

func TestGitHubPRReview_InvalidRepo(t *testing.T) {
	fake := &fakeClients{}
	reg := registered(t, fake)

	_, err := invoke(t, reg, "github_pr_review", map[string]any{"repo": "widget", "pr_number": 1.0})

	var argErr tools.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "repo", argErr.Name)
	assert.Empty(t, fake.calls)
}

func TestGitHubTeamStats_ValidatesDates(t *testing.T) {
	fake := &fakeClients{}
	reg := registered(t, fake)

	_, err := invoke(t, reg, "github_team_stats", map[string]any{"repo": "acme/widget", "period": "last month"})
	var argErr tools.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "period", argErr.Name)

	out, err := invoke(t, reg, "github_team_stats", map[string]any{"repo": "acme/widget", "period": "2025-01-01"})
	require.NoError(t, err)
	assert.Equal(t, []any{"acme", "widget", "2025-01-01", ""}, fake.args)
	assert.Equal(t, "acme/widget", out["repo"])
}

func TestGitLabMRReview(t *testing.T) {
	fake := &fakeClients{review: provider.ReviewResult{Title: "Fix api"}}
	reg := registered(t, fake)

	out, err := invoke(t, reg, "gitlab_mr_review", map[string]any{"project": "acme/api", "mr_number": 15.0})
	require.NoError(t, err)

	assert.Equal(t, []any{"acme/api", 15, false}, fake.args)
	assert.Equal(t, "Fix api", out["title"])
	assert.NotContains(t, out, "focus")
}

func TestJiraSearch(t *testing.T) {
	fake := &fakeClients{}
	reg := registered(t, fake)

	_, err := invoke(t, reg, "jira_search", map[string]any{
		"jql":         "status = Done",
		"fields":      []any{"summary"},
		"max_results": 10.0,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"status = Done", []string{"summary"}, 10, false}, fake.args)
}

func TestSprintMetrics(t *testing.T) {
	id := 55
	fake := &fakeClients{sprint: sprint.Metrics{
		Sprint:   sprint.Info{ID: &id, Name: "Sprint 12", StartDate: "2025-03-03"},
		Progress: sprint.Progress{TotalIssues: 4, Completed: 4, CompletionPercent: 100},
	}}
	reg := registered(t, fake)

	out, err := invoke(t, reg, "sprint_metrics", map[string]any{
		"board_id":    7.0,
		"github_repo": "acme/widget",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"SprintMetrics", "MergedPRCount"}, fake.calls)
	assert.Equal(t, "on_track", out["health"])
	assert.Equal(t, []any{"jira", "github"}, out["data_sources"])
	assert.Equal(t, map[string]any{"prs_merged": 3.0, "avg_lines_per_pr": 40.0}, out["velocity"])
}

func TestSprintMetrics_NoActiveSprint(t *testing.T) {
	fake := &fakeClients{err: fmt.Errorf("board 7: %w", jira.ErrNoActiveSprint)}
	reg := registered(t, fake)

	_, err := invoke(t, reg, "sprint_metrics", map[string]any{"board_id": 7.0})

	var notFound tools.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Provide sprint_id if you want a specific sprint.", notFound.Hint)
}

func TestSprintMetrics_RejectsUnknownSource(t *testing.T) {
	reg := registered(t, &fakeClients{})

	_, err := invoke(t, reg, "sprint_metrics", map[string]any{"source": "bitbucket"})

	var argErr tools.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "source", argErr.Name)
}

func TestSentryIssues(t *testing.T) {
	fake := &fakeClients{}
	reg := registered(t, fake)

	_, err := invoke(t, reg, "sentry_issues", map[string]any{"level": "error", "time_range": "24h"})
	require.NoError(t, err)
	assert.Equal(t, []any{"error", "24h", 0, false}, fake.args)
}

func TestSentryIssues_Detail(t *testing.T) {
	fake := &fakeClients{}
	fake.details.ID = "101"
	reg := registered(t, fake)

	out, err := invoke(t, reg, "sentry_issues", map[string]any{"issue_id": "101"})
	require.NoError(t, err)

	assert.Equal(t, []string{"IssueDetails", "LatestEvent"}, fake.calls)
	assert.Equal(t, "101", out["issue"].(map[string]any)["id"])
	assert.Equal(t, "ev-1", out["latest_event"].(map[string]any)["event_id"])
}

func TestGrafanaAlerts_Modes(t *testing.T) {
	fake := &fakeClients{
		rules:  []grafana.AlertRule{{UID: "r-1"}},
		annots: []grafana.Annotation{{ID: 1}, {ID: 2}},
	}
	reg := registered(t, fake)

	_, err := invoke(t, reg, "grafana_alerts", map[string]any{"state": "firing"})
	require.NoError(t, err)
	assert.Equal(t, []any{"firing", false}, fake.args)

	out, err := invoke(t, reg, "grafana_alerts", map[string]any{"mode": "rules"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out["total"])

	out, err = invoke(t, reg, "grafana_alerts", map[string]any{"mode": "annotations", "dashboard_uid": "abc"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out["total"])
	assert.Equal(t, []any{"abc", "24h", 0, false}, fake.args)
}

func TestBuildkiteBuilds(t *testing.T) {
	fake := &fakeClients{}
	reg := registered(t, fake)

	out, err := invoke(t, reg, "buildkite_builds", map[string]any{"pipeline": "acme/deploy", "limit": 5.0})
	require.NoError(t, err)

	assert.Equal(t, []any{"acme", "deploy", 5, false}, fake.args)
	assert.Equal(t, "acme/deploy", out["pipeline"])

	_, err = invoke(t, reg, "buildkite_builds", map[string]any{"pipeline": "deploy"})
	var argErr tools.ArgumentError
	require.ErrorAs(t, err, &argErr)
}
