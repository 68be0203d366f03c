package sprint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/ratelimit"
	"github.com/shipmate/shipmate/internal/scope"
)

// Sources selectable in a Request.
const (
	SourceAll    = "all"
	SourceJira   = "jira"
	SourceGitHub = "github"
	SourceGitLab = "gitlab"
)

// syntheticPeriod is the span reported when no Jira sprint is available.
const syntheticPeriod = 14 * 24 * time.Hour

type JiraSource interface {
	SprintMetrics(ctx context.Context, boardID, sprintID int) (Metrics, error)
}

type GitHubSource interface {
	MergedPRCount(ctx context.Context, owner, repo, since string) (provider.MergedCount, error)
}

type GitLabSource interface {
	MergedMRCount(ctx context.Context, project, since string) (provider.MergedCount, error)
}

// Deps holds the configured sources; any of them may be nil.
type Deps struct {
	Jira   JiraSource
	GitHub GitHubSource
	GitLab GitLabSource
	// Now defaults to time.Now.
	Now func() time.Time
}

type Request struct {
	BoardID       int
	SprintID      int
	GitHubRepo    string
	GitLabProject string
	// Source limits the sources queried; empty means SourceAll.
	Source string
}

func (r Request) uses(source string) bool {
	return r.Source == "" || r.Source == SourceAll || r.Source == source
}

// Collect builds a sprint report. Jira supplies the sprint and its progress
// when a board is given; otherwise the report covers the last two weeks.
// Merge counts from GitHub and GitLab are added to the velocity. A failure of
// either is recorded as a risk, except scope violations and rate limiting,
// which fail the whole report.
func Collect(ctx context.Context, deps Deps, req Request) (Report, error) {
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}

	var sources []string
	var metrics Metrics

	useJira := deps.Jira != nil && req.uses(SourceJira)
	if useJira {
		sources = append(sources, SourceJira)
	}

	if useJira && req.BoardID != 0 {
		m, err := deps.Jira.SprintMetrics(ctx, req.BoardID, req.SprintID)
		if err != nil {
			return Report{}, err
		}
		metrics = m
	} else {
		metrics = currentPeriod(now())
	}

	if metrics.Blockers == nil {
		metrics.Blockers = []Blocker{}
	}
	if metrics.Risks == nil {
		metrics.Risks = []string{}
	}

	since := dateOf(metrics.Sprint.StartDate)

	if deps.GitHub != nil && req.GitHubRepo != "" && req.uses(SourceGitHub) {
		sources = append(sources, SourceGitHub)

		count, err := mergedPRs(ctx, deps.GitHub, req.GitHubRepo, since)
		if err := addVelocity(&metrics, "GitHub", count, err); err != nil {
			return Report{}, err
		}
	}

	if deps.GitLab != nil && req.GitLabProject != "" && req.uses(SourceGitLab) {
		sources = append(sources, SourceGitLab)

		count, err := deps.GitLab.MergedMRCount(ctx, req.GitLabProject, since)
		if err := addVelocity(&metrics, "GitLab", count, err); err != nil {
			return Report{}, err
		}
	}

	report := Report{
		Metrics:     metrics,
		Health:      HealthOf(metrics),
		DataSources: sources,
	}
	if report.DataSources == nil {
		report.DataSources = []string{}
	}

	log.Info().
		Str("sprint", metrics.Sprint.Name).
		Float64("completion_percent", metrics.Progress.CompletionPercent).
		Str("health", string(report.Health)).
		Strs("sources", report.DataSources).
		Msg("sprint: report collected")

	return report, nil
}

func mergedPRs(ctx context.Context, src GitHubSource, full, since string) (provider.MergedCount, error) {
	owner, repo, err := provider.ParseRepo(full)
	if err != nil {
		return provider.MergedCount{}, err
	}
	return src.MergedPRCount(ctx, owner, repo, since)
}

// addVelocity folds a merge count into the metrics, or records the failure
// as a risk. Failures that must not be masked are returned.
func addVelocity(m *Metrics, name string, count provider.MergedCount, err error) error {
	if err != nil {
		var violation scope.ViolationError
		var limited ratelimit.RateLimitError
		if errors.As(err, &violation) || errors.As(err, &limited) {
			return err
		}

		log.Warn().Err(err).Str("source", name).Msg("sprint: source unavailable")
		m.Risks = append(m.Risks, fmt.Sprintf("%s data unavailable: %v", name, err))
		return nil
	}

	m.Velocity.PRsMerged += count.Count
	m.Velocity.AvgLinesPerPR = max(m.Velocity.AvgLinesPerPR, count.AvgLines)

	return nil
}

func currentPeriod(now time.Time) Metrics {
	now = now.UTC()

	return Metrics{
		Sprint: Info{
			Name:      "Current Period",
			StartDate: now.Add(-syntheticPeriod).Format(time.DateOnly),
			EndDate:   now.Format(time.DateOnly),
		},
		Blockers: []Blocker{},
		Risks:    []string{},
	}
}

// dateOf trims a timestamp to its date, the form merge searches expect.
func dateOf(value string) string {
	if len(value) > len(time.DateOnly) {
		return value[:len(time.DateOnly)]
	}
	return value
}
