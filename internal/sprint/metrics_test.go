package sprint_test

import (
	"testing"

	"github.com/shipmate/shipmate/internal/sprint"
	"github.com/stretchr/testify/assert"
)

func TestHealthOf(t *testing.T) {
	blockers := func(n int) []sprint.Blocker {
		return make([]sprint.Blocker, n)
	}

	tests := []struct {
		name     string
		total    int
		percent  float64
		blockers int
		expected sprint.Health
	}{
		{"no issues", 0, 0, 0, sprint.HealthUnknown},
		{"mostly done, unblocked", 10, 80, 0, sprint.HealthOnTrack},
		{"mostly done, one blocker", 10, 90, 1, sprint.HealthAtRisk},
		{"half done, many blockers", 10, 50, 3, sprint.HealthAtRisk},
		{"behind, one blocker", 10, 20, 1, sprint.HealthAtRisk},
		{"behind, blocked", 10, 40, 2, sprint.HealthOffTrack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sprint.Metrics{
				Progress: sprint.Progress{TotalIssues: tt.total, CompletionPercent: tt.percent},
				Blockers: blockers(tt.blockers),
			}
			assert.Equal(t, tt.expected, sprint.HealthOf(m))
		})
	}
}
