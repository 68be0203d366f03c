// Package scope restricts provider access to the repositories, projects and
// boards the deployment is configured for. Every check fails closed: a
// domain with no configured allowlist permits nothing.
package scope

import (
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Config holds the raw allowlist values, as read from the environment.
type Config struct {
	GitHubRepos        string
	GitLabProjects     string
	JiraProjects       string
	JiraBoards         string
	BuildkitePipelines string
	SentryOrg          string
	SentryProject      string
}

// Guard is immutable after construction and safe for concurrent use.
type Guard struct {
	githubRepos        allowlist
	gitlabProjects     allowlist
	jiraProjects       allowlist
	jiraBoards         boardList
	buildkitePipelines allowlist
	sentryOrg          string
	sentryProject      string
}

func New(cfg Config) *Guard {
	g := &Guard{
		githubRepos:        parseList(cfg.GitHubRepos, true),
		gitlabProjects:     parseList(cfg.GitLabProjects, true),
		jiraProjects:       parseList(cfg.JiraProjects, false),
		jiraBoards:         parseBoards(cfg.JiraBoards),
		buildkitePipelines: parseList(cfg.BuildkitePipelines, true),
		sentryOrg:          strings.TrimSpace(cfg.SentryOrg),
		sentryProject:      strings.TrimSpace(cfg.SentryProject),
	}

	g.logSummary()

	return g
}

func (g *Guard) logSummary() {
	if !g.githubRepos.empty() {
		log.Info().Strs("repositories", g.githubRepos.ordered).Msg("scope: GitHub repositories")
	}
	if !g.gitlabProjects.empty() {
		log.Info().Strs("projects", g.gitlabProjects.ordered).Msg("scope: GitLab projects")
	}
	if !g.jiraProjects.empty() {
		log.Info().Strs("projects", g.jiraProjects.ordered).Msg("scope: Jira projects")
	}
	if len(g.jiraBoards.ordered) > 0 {
		log.Info().Ints("boards", g.jiraBoards.ordered).Msg("scope: Jira boards")
	}
	if !g.buildkitePipelines.empty() {
		log.Info().Strs("pipelines", g.buildkitePipelines.ordered).Msg("scope: Buildkite pipelines")
	}
	if g.HasSentryScope() {
		log.Info().Str("org", g.sentryOrg).Str("project", g.sentryProject).Msg("scope: Sentry project")
	}
}

// CheckGitHub permits owner/repo when it is allowlisted, ignoring case.
func (g *Guard) CheckGitHub(owner, repo string) error {
	full := Fold(owner + "/" + repo)
	if !g.githubRepos.contains(full) {
		return ViolationError{Domain: "github", Requested: full, Allowed: g.githubRepos.values()}
	}

	return nil
}

// CheckGitLab permits a project path when it is allowlisted, ignoring case.
func (g *Guard) CheckGitLab(project string) error {
	if !g.gitlabProjects.contains(Fold(project)) {
		return ViolationError{Domain: "gitlab", Requested: project, Allowed: g.gitlabProjects.values()}
	}

	return nil
}

// CheckJiraBoard permits any board when no boards are configured: project
// filtering of the JQL is the primary Jira boundary.
func (g *Guard) CheckJiraBoard(boardID int) error {
	if len(g.jiraBoards.ordered) > 0 && !g.jiraBoards.contains(boardID) {
		return ViolationError{
			Domain:    "jira-board",
			Requested: strconv.Itoa(boardID),
			Allowed:   g.jiraBoards.strings(),
		}
	}

	return nil
}

// RequireJiraScope fails when no Jira projects are configured, as an
// unscoped query would range over every project the credentials can see.
func (g *Guard) RequireJiraScope() error {
	if !g.HasJiraScope() {
		return ViolationError{Domain: "jira", Requested: "search", Allowed: []string{}}
	}

	return nil
}

// CheckSentry permits exactly the configured org/project pair. Comparison is
// case sensitive.
func (g *Guard) CheckSentry(org, project string) error {
	requested := org + "/" + project

	if !g.HasSentryScope() {
		return ViolationError{Domain: "sentry", Requested: requested, Allowed: []string{}}
	}
	if org != g.sentryOrg || project != g.sentryProject {
		return ViolationError{
			Domain:    "sentry",
			Requested: requested,
			Allowed:   []string{g.sentryOrg + "/" + g.sentryProject},
		}
	}

	return nil
}

// CheckBuildkitePipeline permits org/pipeline when it is allowlisted,
// ignoring case.
func (g *Guard) CheckBuildkitePipeline(org, pipeline string) error {
	full := Fold(org + "/" + pipeline)
	if !g.buildkitePipelines.contains(full) {
		return ViolationError{Domain: "buildkite", Requested: full, Allowed: g.buildkitePipelines.values()}
	}

	return nil
}

// ScopeJQL restricts a JQL query to the configured projects. The project
// clause is always the outermost conjunct, and a trailing ORDER BY is kept
// after it. The query is returned unchanged when no projects are configured.
// A query whose parentheses or quotes do not balance is rejected with a
// QueryError.
func (g *Guard) ScopeJQL(jql string) (string, error) {
	if g.jiraProjects.empty() {
		return jql, nil
	}

	filter, orderBy, err := splitJQL(jql)
	if err != nil {
		return "", err
	}

	scoped := g.ProjectClause()
	if filter != "" {
		scoped = "(" + filter + ") AND " + scoped
	}
	if orderBy != "" {
		scoped += " " + orderBy
	}

	return scoped, nil
}

// ProjectClause is the bare `project IN (...)` restriction, or "" when no
// projects are configured.
func (g *Guard) ProjectClause() string {
	if g.jiraProjects.empty() {
		return ""
	}

	quoted := make([]string, len(g.jiraProjects.ordered))
	for i, p := range g.jiraProjects.ordered {
		quoted[i] = strconv.Quote(p)
	}

	return "project IN (" + strings.Join(quoted, ", ") + ")"
}

func (g *Guard) HasGitHubScope() bool    { return !g.githubRepos.empty() }
func (g *Guard) HasGitLabScope() bool    { return !g.gitlabProjects.empty() }
func (g *Guard) HasJiraScope() bool      { return !g.jiraProjects.empty() }
func (g *Guard) HasBuildkiteScope() bool { return !g.buildkitePipelines.empty() }

func (g *Guard) HasSentryScope() bool {
	return g.sentryOrg != "" && g.sentryProject != ""
}

func (g *Guard) SentryOrg() string     { return g.sentryOrg }
func (g *Guard) SentryProject() string { return g.sentryProject }

func (g *Guard) GitHubRepos() []string        { return g.githubRepos.values() }
func (g *Guard) GitLabProjects() []string     { return g.gitlabProjects.values() }
func (g *Guard) JiraProjects() []string       { return g.jiraProjects.values() }
func (g *Guard) JiraBoards() []int            { return slices.Clone(g.jiraBoards.ordered) }
func (g *Guard) BuildkitePipelines() []string { return g.buildkitePipelines.values() }

// Summary describes the effective allowlists.
type Summary struct {
	GitHubRepos        []string `json:"github_repos" yaml:"github_repos"`
	GitLabProjects     []string `json:"gitlab_projects" yaml:"gitlab_projects"`
	JiraProjects       []string `json:"jira_projects" yaml:"jira_projects"`
	JiraBoards         []int    `json:"jira_boards" yaml:"jira_boards"`
	BuildkitePipelines []string `json:"buildkite_pipelines" yaml:"buildkite_pipelines"`
	Sentry             string   `json:"sentry,omitempty" yaml:"sentry,omitempty"`
}

func (g *Guard) Summary() Summary {
	s := Summary{
		GitHubRepos:        g.GitHubRepos(),
		GitLabProjects:     g.GitLabProjects(),
		JiraProjects:       g.JiraProjects(),
		JiraBoards:         g.JiraBoards(),
		BuildkitePipelines: g.BuildkitePipelines(),
	}
	if g.HasSentryScope() {
		s.Sentry = g.sentryOrg + "/" + g.sentryProject
	}

	return s
}
