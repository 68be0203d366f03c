package scope_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/shipmate/shipmate/internal/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckGitHub(t *testing.T) {
	g := scope.New(scope.Config{GitHubRepos: "acme/widget, acme/gadget"})

	cases := []struct {
		name    string
		owner   string
		repo    string
		allowed bool
	}{
		{"exact", "acme", "widget", true},
		{"mixed case", "Acme", "Widget", true},
		{"second entry", "ACME", "GADGET", true},
		{"other repo", "acme", "secret", false},
		{"other owner", "evil", "widget", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.CheckGitHub(tc.owner, tc.repo)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFold_AgreesWithGuardIdentity(t *testing.T) {
	g := scope.New(scope.Config{
		GitHubRepos:        "Acme/İnfra",
		GitLabProjects:     "Grüppe/Straße",
		BuildkitePipelines: "Acme/DÉPLOY",
	})

	assert.Equal(t, scope.Fold("ACME/İNFRA"), scope.Fold("acme/İnfra"))
	assert.Equal(t, []string{scope.Fold("Acme/İnfra")}, g.GitHubRepos())
	assert.Equal(t, []string{scope.Fold("Grüppe/Straße")}, g.GitLabProjects())
	assert.Equal(t, []string{scope.Fold("Acme/DÉPLOY")}, g.BuildkitePipelines())

	assert.NoError(t, g.CheckGitHub("ACME", "İNFRA"))
	assert.NoError(t, g.CheckGitLab("GRÜPPE/Straße"))
	assert.NoError(t, g.CheckBuildkitePipeline("acme", "déploy"))
}

func TestCheckGitHub_ViolationDetails(t *testing.T) {
	g := scope.New(scope.Config{GitHubRepos: "Acme/Widget"})

	err := g.CheckGitHub("Evil", "Repo")

	var violation scope.ViolationError
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "github", violation.Domain)
	assert.Equal(t, "evil/repo", violation.Requested)
	assert.Equal(t, []string{"acme/widget"}, violation.Allowed)
	assert.Contains(t, violation.Error(), `github "evil/repo" is not in the allowed list [acme/widget]`)

	code, _ := violation.Status()
	assert.Equal(t, http.StatusForbidden, code)
}

func TestCheckGitHub_FailsClosedWithoutAllowlist(t *testing.T) {
	g := scope.New(scope.Config{})

	assert.False(t, g.HasGitHubScope())
	assert.Error(t, g.CheckGitHub("acme", "widget"))
}

func TestCheckGitLab(t *testing.T) {
	g := scope.New(scope.Config{GitLabProjects: "Group/Sub/Project"})

	assert.NoError(t, g.CheckGitLab("group/sub/project"))
	assert.NoError(t, g.CheckGitLab("GROUP/SUB/PROJECT"))

	err := g.CheckGitLab("Group/Other")
	var violation scope.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "gitlab", violation.Domain)
	assert.Equal(t, "Group/Other", violation.Requested)
}

func TestCheckJiraBoard(t *testing.T) {
	g := scope.New(scope.Config{JiraBoards: "12, 34"})

	assert.NoError(t, g.CheckJiraBoard(12))
	assert.NoError(t, g.CheckJiraBoard(34))

	err := g.CheckJiraBoard(99)
	var violation scope.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "jira-board", violation.Domain)
	assert.Equal(t, "99", violation.Requested)
	assert.Equal(t, []string{"12", "34"}, violation.Allowed)
}

func TestCheckJiraBoard_NoBoardsSkipsCheck(t *testing.T) {
	g := scope.New(scope.Config{JiraProjects: "SHIP"})

	assert.NoError(t, g.CheckJiraBoard(12345))
}

func TestCheckJiraBoard_IgnoresUnparsableEntries(t *testing.T) {
	g := scope.New(scope.Config{JiraBoards: "12, abc, , 7"})

	assert.NoError(t, g.CheckJiraBoard(12))
	assert.NoError(t, g.CheckJiraBoard(7))
	assert.Error(t, g.CheckJiraBoard(8))
	assert.Equal(t, []int{12, 7}, g.Summary().JiraBoards)
}

func TestScopeJQL(t *testing.T) {
	g := scope.New(scope.Config{JiraProjects: "SHIP, PROJ"})

	tests := []struct {
		name     string
		jql      string
		expected string
	}{
		{
			name:     "simple filter",
			jql:      `status = "Open"`,
			expected: `(status = "Open") AND project IN ("SHIP", "PROJ")`,
		},
		{
			name:     "other project stays inside the restriction",
			jql:      `project = OTHER AND status = Open`,
			expected: `(project = OTHER AND status = Open) AND project IN ("SHIP", "PROJ")`,
		},
		{
			name:     "disjunction is bound by the restriction",
			jql:      `status = Open OR project = SECRET`,
			expected: `(status = Open OR project = SECRET) AND project IN ("SHIP", "PROJ")`,
		},
		{
			name:     "balanced groups",
			jql:      `(status = Open) OR (assignee = currentUser())`,
			expected: `((status = Open) OR (assignee = currentUser())) AND project IN ("SHIP", "PROJ")`,
		},
		{
			name:     "parentheses inside strings are ignored",
			jql:      `summary ~ "fix (part 2" OR summary ~ 'a) b'`,
			expected: `(summary ~ "fix (part 2" OR summary ~ 'a) b') AND project IN ("SHIP", "PROJ")`,
		},
		{
			name:     "escaped quote inside string",
			jql:      `summary ~ "say \"hi)\""`,
			expected: `(summary ~ "say \"hi)\"") AND project IN ("SHIP", "PROJ")`,
		},
		{
			name:     "order by kept after the restriction",
			jql:      `status = Open ORDER BY created DESC`,
			expected: `(status = Open) AND project IN ("SHIP", "PROJ") ORDER BY created DESC`,
		},
		{
			name:     "lower case order by",
			jql:      `(status = Open) order  by priority`,
			expected: `((status = Open)) AND project IN ("SHIP", "PROJ") order  by priority`,
		},
		{
			name:     "order by inside a string is part of the filter",
			jql:      `summary ~ "order by date"`,
			expected: `(summary ~ "order by date") AND project IN ("SHIP", "PROJ")`,
		},
		{
			name:     "order by only",
			jql:      `ORDER BY updated DESC`,
			expected: `project IN ("SHIP", "PROJ") ORDER BY updated DESC`,
		},
		{
			name:     "empty query",
			jql:      `   `,
			expected: `project IN ("SHIP", "PROJ")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scoped, err := g.ScopeJQL(tt.jql)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, scoped)
		})
	}

	assert.Equal(t, `project IN ("SHIP", "PROJ")`, g.ProjectClause())
}

func TestScopeJQL_RejectsUnbalancedQueries(t *testing.T) {
	g := scope.New(scope.Config{JiraProjects: "SHIP"})

	tests := []struct {
		name   string
		jql    string
		reason string
	}{
		{"closing parenthesis escapes the group", `status = Open) OR (project = SECRET`, "unbalanced ')'"},
		{"leading close", `) OR project = SECRET OR (`, "unbalanced ')'"},
		{"unclosed group", `(status = Open`, "unbalanced '('"},
		{"unterminated string", `summary ~ "open) OR (x`, "unterminated string"},
		{"unterminated single quoted string", `summary ~ 'x`, "unterminated string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scoped, err := g.ScopeJQL(tt.jql)

			var queryErr scope.QueryError
			require.ErrorAs(t, err, &queryErr)
			assert.Equal(t, tt.reason, queryErr.Reason)
			assert.Equal(t, tt.jql, queryErr.Query)
			assert.Empty(t, scoped)

			status, _ := queryErr.Status()
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestScopeJQL_PreservesCaseAndOrder(t *testing.T) {
	g := scope.New(scope.Config{JiraProjects: "zeta, Alpha, zeta, MID"})

	assert.Equal(t, `project IN ("zeta", "Alpha", "MID")`, g.ProjectClause())
}

func TestScopeJQL_UnchangedWithoutProjects(t *testing.T) {
	g := scope.New(scope.Config{})

	scoped, err := g.ScopeJQL("assignee = currentUser()")
	require.NoError(t, err)
	assert.Equal(t, "assignee = currentUser()", scoped)
	assert.Empty(t, g.ProjectClause())
	assert.False(t, g.HasJiraScope())
	assert.Error(t, g.RequireJiraScope())
}

func TestCheckSentry(t *testing.T) {
	g := scope.New(scope.Config{SentryOrg: "acme", SentryProject: "web"})

	assert.True(t, g.HasSentryScope())
	assert.NoError(t, g.CheckSentry("acme", "web"))
	assert.Error(t, g.CheckSentry("acme", "api"))
	assert.Error(t, g.CheckSentry("Acme", "web"), "sentry comparison is case sensitive")
}

func TestCheckSentry_RequiresOrgAndProject(t *testing.T) {
	g := scope.New(scope.Config{SentryOrg: "acme"})

	assert.False(t, g.HasSentryScope())

	err := g.CheckSentry("acme", "web")
	var violation scope.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "sentry", violation.Domain)
	assert.Empty(t, violation.Allowed)
}

func TestCheckBuildkitePipeline(t *testing.T) {
	g := scope.New(scope.Config{BuildkitePipelines: "acme/deploy"})

	assert.True(t, g.HasBuildkiteScope())
	assert.NoError(t, g.CheckBuildkitePipeline("ACME", "Deploy"))
	assert.Error(t, g.CheckBuildkitePipeline("acme", "release"))
}

func TestAllowlistParsing(t *testing.T) {
	g := scope.New(scope.Config{GitHubRepos: " , acme/widget ,, ACME/WIDGET, acme/gadget "})

	assert.Equal(t, []string{"acme/widget", "acme/gadget"}, g.Summary().GitHubRepos)
}

func TestSummary_ReturnsCopies(t *testing.T) {
	g := scope.New(scope.Config{GitHubRepos: "acme/widget"})

	s := g.Summary()
	s.GitHubRepos[0] = "evil/repo"

	assert.NoError(t, g.CheckGitHub("acme", "widget"))
	assert.Error(t, g.CheckGitHub("evil", "repo"))
}
