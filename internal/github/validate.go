package github

import (
	"context"
	"strings"

	"github.com/google/go-github/v80/github"
	"github.com/rs/zerolog/log"
	"github.com/shipmate/shipmate/internal/scope"
)

// ScopeReport compares the repositories visible to the configured credential
// with the allowlist.
type ScopeReport struct {
	Visible    []string `json:"visible" yaml:"visible"`
	OutOfScope []string `json:"out_of_scope" yaml:"out_of_scope"`
}

func (r ScopeReport) OK() bool {
	return len(r.OutOfScope) == 0
}

// ValidateTokenScope lists the repositories the credential can see and
// reports those outside the allowlist. It is a diagnostic: the result is not
// cached and does not consume rate limit tokens.
func (c *Client) ValidateTokenScope(ctx context.Context) (ScopeReport, error) {
	visible, err := c.visibleRepos(ctx)
	if err != nil {
		return ScopeReport{}, err
	}

	report := ScopeReport{Visible: visible, OutOfScope: []string{}}
	for _, full := range visible {
		owner, repo, _ := strings.Cut(full, "/")
		if c.guard.CheckGitHub(owner, repo) != nil {
			report.OutOfScope = append(report.OutOfScope, full)
		}
	}

	if !report.OK() {
		sample := report.OutOfScope
		if len(sample) > 5 {
			sample = sample[:5]
		}
		log.Warn().
			Int("visible", len(report.Visible)).
			Int("out_of_scope", len(report.OutOfScope)).
			Strs("examples", sample).
			Msg("github: credential can read repositories outside the configured scope; use a token or installation limited to the project repositories")
	} else {
		log.Info().Int("visible", len(report.Visible)).Msg("github: credential scope matches configuration")
	}

	return report, nil
}

func (c *Client) visibleRepos(ctx context.Context) ([]string, error) {
	var names []string
	opts := github.ListOptions{PerPage: 100}

	for {
		var repos []*github.Repository
		var resp *github.Response

		if c.usesApp {
			list, r, err := c.client.Apps.ListRepos(ctx, &opts)
			if err != nil {
				return nil, upstreamError(err)
			}
			repos, resp = list.Repositories, r
		} else {
			list, r, err := c.client.Repositories.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{
				Affiliation: "owner,collaborator,organization_member",
				ListOptions: opts,
			})
			if err != nil {
				return nil, upstreamError(err)
			}
			repos, resp = list, r
		}

		for _, repo := range repos {
			names = append(names, scope.Fold(repo.GetFullName()))
		}

		if resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}
