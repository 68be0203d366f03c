package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	cases := []struct {
		name     string
		prefix   string
		parts    []string
		expected string
	}{
		{"all parts", "gh", []string{"pr", "acme/widget", "42"}, "gh:pr:acme/widget:42"},
		{"empty parts dropped", "jira", []string{"sprint", "", "7"}, "jira:sprint:7"},
		{"prefix only", "grafana", nil, "grafana"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Key(tc.prefix, tc.parts...))
		})
	}
}

func TestHashParams_IndependentOfInsertionOrder(t *testing.T) {
	a := map[string]any{}
	a["jql"] = "status = Open"
	a["maxResults"] = 50
	a["fields"] = []string{"summary", "status"}

	b := map[string]any{}
	b["fields"] = []string{"summary", "status"}
	b["maxResults"] = 50
	b["jql"] = "status = Open"

	assert.Equal(t, HashParams(a), HashParams(b))
}

func TestHashParams_Shape(t *testing.T) {
	h := HashParams(map[string]any{"limit": 25})

	assert.Len(t, h, 12)
	assert.Regexp(t, "^[0-9a-f]{12}$", h)
}

func TestHashParams_DistinguishesValues(t *testing.T) {
	assert.NotEqual(t,
		HashParams(map[string]any{"limit": 25}),
		HashParams(map[string]any{"limit": 26}),
	)
}
