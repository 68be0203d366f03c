package tools_test

import (
	"context"

	"github.com/shipmate/shipmate/internal/buildkite"
	"github.com/shipmate/shipmate/internal/github"
	"github.com/shipmate/shipmate/internal/grafana"
	"github.com/shipmate/shipmate/internal/jira"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/sentry"
	"github.com/shipmate/shipmate/internal/sprint"
)

// fakeClients implements every client interface, recording the last call.
type fakeClients struct {
	calls []string
	args  []any
	err   error

	review  provider.ReviewResult
	sprint  sprint.Metrics
	builds  []buildkite.Build
	rules   []grafana.AlertRule
	annots  []grafana.Annotation
	details sentry.Issue
}

func (f *fakeClients) record(name string, args ...any) {
	f.calls = append(f.calls, name)
	f.args = args
}

func (f *fakeClients) PullRequest(ctx context.Context, owner, repo string, number int, refresh bool) (provider.ReviewResult, error) {
	f.record("PullRequest", owner, repo, number, refresh)
	return f.review, f.err
}

func (f *fakeClients) TeamStats(ctx context.Context, owner, repo, since, until string) (github.TeamStats, error) {
	f.record("TeamStats", owner, repo, since, until)
	return github.TeamStats{Repo: owner + "/" + repo}, f.err
}

func (f *fakeClients) MergedPRCount(ctx context.Context, owner, repo, since string) (provider.MergedCount, error) {
	f.record("MergedPRCount", owner, repo, since)
	return provider.MergedCount{Count: 3, AvgLines: 40}, f.err
}

func (f *fakeClients) MergeRequest(ctx context.Context, project string, iid int, refresh bool) (provider.ReviewResult, error) {
	f.record("MergeRequest", project, iid, refresh)
	return f.review, f.err
}

func (f *fakeClients) MergedMRCount(ctx context.Context, project, since string) (provider.MergedCount, error) {
	f.record("MergedMRCount", project, since)
	return provider.MergedCount{Count: 1, AvgLines: 90}, f.err
}

func (f *fakeClients) Search(ctx context.Context, jql string, fields []string, maxResults int, refresh bool) (jira.SearchResult, error) {
	f.record("Search", jql, fields, maxResults, refresh)
	return jira.SearchResult{Issues: []jira.Issue{}}, f.err
}

func (f *fakeClients) SprintMetrics(ctx context.Context, boardID, sprintID int) (sprint.Metrics, error) {
	f.record("SprintMetrics", boardID, sprintID)
	return f.sprint, f.err
}

func (f *fakeClients) UnresolvedIssues(ctx context.Context, level, timeRange string, limit int, refresh bool) (sentry.IssuesResult, error) {
	f.record("UnresolvedIssues", level, timeRange, limit, refresh)
	return sentry.IssuesResult{Issues: []sentry.Issue{}}, f.err
}

func (f *fakeClients) IssueDetails(ctx context.Context, issueID string, refresh bool) (sentry.Issue, error) {
	f.record("IssueDetails", issueID, refresh)
	return f.details, f.err
}

func (f *fakeClients) LatestEvent(ctx context.Context, issueID string, refresh bool) (sentry.Event, error) {
	f.record("LatestEvent", issueID, refresh)
	return sentry.Event{EventID: "ev-1"}, f.err
}

func (f *fakeClients) Alerts(ctx context.Context, state string, refresh bool) (grafana.AlertsResult, error) {
	f.record("Alerts", state, refresh)
	return grafana.AlertsResult{Alerts: []grafana.Alert{}}, f.err
}

func (f *fakeClients) AlertRules(ctx context.Context, refresh bool) ([]grafana.AlertRule, error) {
	f.record("AlertRules", refresh)
	return f.rules, f.err
}

func (f *fakeClients) Annotations(ctx context.Context, dashboardUID, timeRange string, limit int, refresh bool) ([]grafana.Annotation, error) {
	f.record("Annotations", dashboardUID, timeRange, limit, refresh)
	return f.annots, f.err
}

func (f *fakeClients) Builds(ctx context.Context, org, pipeline string, limit int, refresh bool) ([]buildkite.Build, error) {
	f.record("Builds", org, pipeline, limit, refresh)
	return f.builds, f.err
}
