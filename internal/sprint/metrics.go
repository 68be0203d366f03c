// Package sprint combines task progress from Jira with merge activity from
// GitHub and GitLab into one sprint report.
package sprint

// Info identifies a sprint. ID is nil for the synthetic period used when no
// Jira sprint is available.
type Info struct {
	ID            *int    `json:"id"`
	Name          string  `json:"name"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	DaysRemaining int     `json:"days_remaining"`
	Goal          *string `json:"goal"`
}

type Progress struct {
	TotalIssues       int     `json:"total_issues"`
	Completed         int     `json:"completed"`
	InProgress        int     `json:"in_progress"`
	Todo              int     `json:"todo"`
	Blocked           int     `json:"blocked"`
	CompletionPercent float64 `json:"completion_percent"`
}

type StoryPoints struct {
	Total     float64 `json:"total"`
	Completed float64 `json:"completed"`
	Remaining float64 `json:"remaining"`
}

type Velocity struct {
	PRsMerged     int `json:"prs_merged"`
	AvgLinesPerPR int `json:"avg_lines_per_pr"`
}

type Blocker struct {
	Key       string  `json:"key"`
	Title     string  `json:"title"`
	Assignee  *string `json:"assignee"`
	StuckDays int     `json:"stuck_days"`
	Reason    string  `json:"reason"`
}

// Metrics is the state of a sprint. StoryPoints is nil when no issue carries
// an estimate.
type Metrics struct {
	Sprint      Info         `json:"sprint"`
	Progress    Progress     `json:"progress"`
	StoryPoints *StoryPoints `json:"story_points"`
	Velocity    Velocity     `json:"velocity"`
	Blockers    []Blocker    `json:"blockers"`
	Risks       []string     `json:"risks"`
}

type Health string

const (
	HealthOnTrack  Health = "on_track"
	HealthAtRisk   Health = "at_risk"
	HealthOffTrack Health = "off_track"
	HealthUnknown  Health = "unknown"
)

// Report is Metrics with the derived health indicator and the sources that
// contributed.
type Report struct {
	Metrics
	Health      Health   `json:"health"`
	DataSources []string `json:"data_sources"`
}

// HealthOf rates a sprint: on track when at least 80% of issues are done with
// no blockers, at risk when at least half are done or at most one issue is
// blocked, off track otherwise. A sprint with no issues cannot be rated.
func HealthOf(m Metrics) Health {
	switch {
	case m.Progress.TotalIssues == 0:
		return HealthUnknown
	case m.Progress.CompletionPercent >= 80 && len(m.Blockers) == 0:
		return HealthOnTrack
	case m.Progress.CompletionPercent >= 50 || len(m.Blockers) <= 1:
		return HealthAtRisk
	default:
		return HealthOffTrack
	}
}
