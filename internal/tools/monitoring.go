package tools

import (
	"context"
	"strings"

	"github.com/shipmate/shipmate/internal/buildkite"
	"github.com/shipmate/shipmate/internal/grafana"
	"github.com/shipmate/shipmate/internal/sentry"
)

type issueDetail struct {
	Issue       sentry.Issue `json:"issue"`
	LatestEvent sentry.Event `json:"latest_event"`
}

func sentryIssuesTool(client SentryClient) Tool {
	return Tool{
		Name: "sentry_issues",
		Description: "Fetch unresolved Sentry issues for the configured project. " +
			"Returns title, culprit, count, severity, first/last seen, and tags. " +
			"Pass issue_id to get details with stacktrace for a specific issue.",
		Params: []Param{
			{Name: "level", Type: TypeString, Description: "Filter by severity level. Default: all levels.", Enum: []string{"error", "warning", "info", "fatal"}},
			{Name: "time_range", Type: TypeString, Description: "Only issues seen within this time range. Default: all time.", Enum: []string{"1h", "24h", "7d", "14d", "30d"}},
			{Name: "limit", Type: TypeNumber, Description: "Max issues to return (1-100). Default: 25."},
			{Name: "issue_id", Type: TypeString, Description: "Specific Sentry issue ID to get details + stacktrace."},
			refreshParam,
		},
		Target: func(args Args) string {
			return args.Str("issue_id")
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			refresh := args.Bool("refresh")

			if id := args.Str("issue_id"); id != "" {
				issue, err := client.IssueDetails(ctx, id, refresh)
				if err != nil {
					return nil, err
				}
				event, err := client.LatestEvent(ctx, id, refresh)
				if err != nil {
					return nil, err
				}
				return issueDetail{Issue: issue, LatestEvent: event}, nil
			}

			return client.UnresolvedIssues(ctx, args.Str("level"), args.Str("time_range"), args.Int("limit"), refresh)
		},
	}
}

type rulesResult struct {
	Total int                 `json:"total"`
	Rules []grafana.AlertRule `json:"rules"`
}

type annotationsResult struct {
	Total       int                  `json:"total"`
	Annotations []grafana.Annotation `json:"annotations"`
}

func grafanaAlertsTool(client GrafanaClient) Tool {
	return Tool{
		Name: "grafana_alerts",
		Description: "Fetch active Grafana alerts, alert rules, and dashboard annotations. " +
			"Returns alert name, state, labels, value, and silenced/inhibited status. " +
			"Use mode='rules' to get configured alert rules, mode='annotations' for incident markers.",
		Params: []Param{
			{Name: "mode", Type: TypeString, Description: "What to fetch. Default: alerts.", Enum: []string{"alerts", "rules", "annotations"}},
			{Name: "state", Type: TypeString, Description: "Filter alerts by state (only for mode=alerts). Default: all states.", Enum: []string{"active", "firing", "pending", "suppressed"}},
			{Name: "time_range", Type: TypeString, Description: "Time range for annotations. Default: 24h.", Enum: []string{"1h", "6h", "24h", "7d"}},
			{Name: "dashboard_uid", Type: TypeString, Description: "Filter annotations by dashboard UID."},
			{Name: "limit", Type: TypeNumber, Description: "Max annotations to return (1-200). Default: 50."},
			refreshParam,
		},
		Target: func(args Args) string {
			return args.Str("dashboard_uid")
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			refresh := args.Bool("refresh")

			switch args.Str("mode") {
			case "rules":
				rules, err := client.AlertRules(ctx, refresh)
				if err != nil {
					return nil, err
				}
				return rulesResult{Total: len(rules), Rules: rules}, nil

			case "annotations":
				timeRange := args.Str("time_range")
				if timeRange == "" {
					timeRange = "24h"
				}
				annotations, err := client.Annotations(ctx, args.Str("dashboard_uid"), timeRange, args.Int("limit"), refresh)
				if err != nil {
					return nil, err
				}
				return annotationsResult{Total: len(annotations), Annotations: annotations}, nil
			}

			return client.Alerts(ctx, args.Str("state"), refresh)
		},
	}
}

type buildsResult struct {
	Pipeline string            `json:"pipeline"`
	Total    int               `json:"total"`
	Builds   []buildkite.Build `json:"builds"`
}

func buildkiteBuildsTool(client BuildkiteClient) Tool {
	return Tool{
		Name: "buildkite_builds",
		Description: "Fetch the recent builds of a Buildkite pipeline: state, branch, commit, timing. " +
			"Useful for checking CI health before a release.",
		Params: []Param{
			{Name: "pipeline", Type: TypeString, Description: `Pipeline in "organization/pipeline" format.`, Required: true},
			{Name: "limit", Type: TypeNumber, Description: "Max builds to return (1-100). Default: 20."},
			refreshParam,
		},
		Target: func(args Args) string {
			return args.Str("pipeline")
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			full := args.Str("pipeline")
			org, pipeline, ok := strings.Cut(full, "/")
			if !ok || org == "" || pipeline == "" || strings.Contains(pipeline, "/") {
				return nil, ArgumentError{Name: "pipeline", Reason: `expected "organization/pipeline"`}
			}

			builds, err := client.Builds(ctx, org, pipeline, args.Int("limit"), args.Bool("refresh"))
			if err != nil {
				return nil, err
			}

			return buildsResult{Pipeline: full, Total: len(builds), Builds: builds}, nil
		},
	}
}
