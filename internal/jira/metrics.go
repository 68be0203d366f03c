package jira

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shipmate/shipmate/internal/sprint"
)

const staleAfterDays = 5

var (
	doneStatuses       = statusSet("Done", "Closed", "Resolved", "Released")
	inProgressStatuses = statusSet("In Progress", "In Review", "In Testing", "Code Review")
	blockedStatuses    = statusSet("Blocked", "On Hold", "Impediment")
)

func statusSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// SprintMetrics reports the progress of a sprint on a board: the given
// sprint, or the active one when sprintID is zero. The board is checked
// before anything is read.
func (c *Client) SprintMetrics(ctx context.Context, boardID, sprintID int) (sprint.Metrics, error) {
	if err := c.guard.CheckJiraBoard(boardID); err != nil {
		return sprint.Metrics{}, err
	}

	var s Sprint
	var err error
	if sprintID != 0 {
		s, err = c.Sprint(ctx, sprintID)
	} else {
		s, err = c.ActiveSprint(ctx, boardID)
	}
	if err != nil {
		return sprint.Metrics{}, err
	}

	issues, err := c.SprintIssues(ctx, s.ID)
	if err != nil {
		return sprint.Metrics{}, err
	}

	return summarize(s, issues, c.now()), nil
}

func summarize(s Sprint, issues []Issue, now time.Time) sprint.Metrics {
	id := s.ID
	info := sprint.Info{
		ID:        &id,
		Name:      s.Name,
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
	}
	if s.Goal != "" {
		goal := s.Goal
		info.Goal = &goal
	}
	if end, ok := parseTime(s.EndDate); ok {
		info.DaysRemaining = max(0, int(math.Ceil(end.Sub(now).Hours()/24)))
	}

	m := sprint.Metrics{
		Sprint:   info,
		Blockers: []sprint.Blocker{},
		Risks:    []string{},
	}

	var totalPoints, completedPoints float64

	for _, issue := range issues {
		points := 0.0
		if issue.StoryPoints != nil {
			points = *issue.StoryPoints
		}
		totalPoints += points

		switch {
		case doneStatuses[issue.Status]:
			m.Progress.Completed++
			completedPoints += points
		case blockedStatuses[issue.Status]:
			m.Progress.Blocked++
			m.Blockers = append(m.Blockers, sprint.Blocker{
				Key:       issue.Key,
				Title:     issue.Summary,
				Assignee:  issue.Assignee,
				StuckDays: daysSince(issue.Updated, now),
				Reason:    "Status: " + issue.Status,
			})
		case inProgressStatuses[issue.Status]:
			m.Progress.InProgress++
		default:
			m.Progress.Todo++
		}
	}

	for _, issue := range issues {
		if doneStatuses[issue.Status] {
			continue
		}
		if days := daysSince(issue.Updated, now); days > staleAfterDays {
			m.Risks = append(m.Risks, fmt.Sprintf("%s %q: no activity for %d days", issue.Key, issue.Summary, days))
		}
	}

	m.Progress.TotalIssues = len(issues)
	if len(issues) > 0 {
		m.Progress.CompletionPercent = math.Round(float64(m.Progress.Completed)/float64(len(issues))*1000) / 10
	}

	if totalPoints > 0 {
		m.StoryPoints = &sprint.StoryPoints{
			Total:     totalPoints,
			Completed: completedPoints,
			Remaining: totalPoints - completedPoints,
		}
	}

	return m
}

// daysSince counts whole days since a Jira timestamp; unparsable values
// count as zero.
func daysSince(value string, now time.Time) int {
	t, ok := parseTime(value)
	if !ok {
		return 0
	}
	return int(math.Floor(now.Sub(t).Hours() / 24))
}

// Jira writes offsets without a colon, e.g. 2025-03-01T09:00:00.000+0000.
var timeLayouts = []string{
	"2006-01-02T15:04:05Z0700",
	time.RFC3339,
	time.DateOnly,
}

func parseTime(value string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
