// Package gitlab reads merge requests from the GitLab API, for the projects
// the scope guard allows.
package gitlab

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/scope"
)

const providerName = "gitlab"

type Client struct {
	api       *provider.JSONClient
	substrate provider.Substrate
	guard     *scope.Guard
}

func New(cfg config.GitLabConfig, substrate provider.Substrate, guard *scope.Guard) *Client {
	return &Client{
		api: &provider.JSONClient{
			Provider: providerName,
			BaseURL:  strings.TrimRight(cfg.Host, "/"),
			Header:   http.Header{"Private-Token": []string{cfg.Token}},
		},
		substrate: substrate,
		guard:     guard,
	}
}

const mergeRequestQuery = `
query MergeRequestReview($project: ID!, $iid: String!) {
  project(fullPath: $project) {
    mergeRequest(iid: $iid) {
      title
      state
      webUrl
      createdAt
      updatedAt
      author { username }
      diffStatsSummary { additions deletions fileCount }
      commitCount
      labels { nodes { title } }
      diffStats { path additions deletions }
      headPipeline {
        status
        stages {
          nodes {
            name
            status
            jobs { nodes { name status } }
          }
        }
      }
      notes(first: 50) {
        nodes {
          author { username }
          body
          createdAt
          system
          resolvable
          resolved
        }
      }
      approvedBy { nodes { username } }
    }
  }
}`

type user struct {
	Username string `json:"username"`
}

type mergeRequest struct {
	Title            string `json:"title"`
	State            string `json:"state"`
	WebURL           string `json:"webUrl"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
	Author           *user  `json:"author"`
	DiffStatsSummary struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
		FileCount int `json:"fileCount"`
	} `json:"diffStatsSummary"`
	CommitCount int `json:"commitCount"`
	Labels      struct {
		Nodes []struct {
			Title string `json:"title"`
		} `json:"nodes"`
	} `json:"labels"`
	DiffStats []struct {
		Path      string `json:"path"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
	} `json:"diffStats"`
	HeadPipeline *struct {
		Status string `json:"status"`
		Stages struct {
			Nodes []struct {
				Name string `json:"name"`
				Jobs struct {
					Nodes []struct {
						Name   string `json:"name"`
						Status string `json:"status"`
					} `json:"nodes"`
				} `json:"jobs"`
			} `json:"nodes"`
		} `json:"stages"`
	} `json:"headPipeline"`
	Notes struct {
		Nodes []struct {
			Author     *user  `json:"author"`
			Body       string `json:"body"`
			CreatedAt  string `json:"createdAt"`
			System     bool   `json:"system"`
			Resolvable bool   `json:"resolvable"`
			Resolved   bool   `json:"resolved"`
		} `json:"nodes"`
	} `json:"notes"`
	ApprovedBy struct {
		Nodes []user `json:"nodes"`
	} `json:"approvedBy"`
}

// MergeRequest returns the review context of a merge request. project is the
// full path, e.g. "group/subgroup/project".
func (c *Client) MergeRequest(ctx context.Context, project string, iid int, refresh bool) (provider.ReviewResult, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "gitlab.merge_request",
		Key:       cache.Key("gl", "mr", scope.Fold(project), strconv.Itoa(iid)),
		TTL:       cache.TTLMetadata,
		Refresh:   refresh,
		Authorize: func() error { return c.guard.CheckGitLab(project) },
	}, func(ctx context.Context) (provider.ReviewResult, error) {
		var data struct {
			Project *struct {
				MergeRequest *mergeRequest `json:"mergeRequest"`
			} `json:"project"`
		}

		err := c.api.GraphQL(ctx, "/api/graphql", mergeRequestQuery, map[string]any{
			"project": project,
			"iid":     strconv.Itoa(iid),
		}, &data)
		if err != nil {
			return provider.ReviewResult{}, err
		}

		if data.Project == nil || data.Project.MergeRequest == nil {
			return provider.ReviewResult{}, provider.UpstreamError{
				Provider:   providerName,
				StatusCode: http.StatusNotFound,
				Body:       fmt.Sprintf("merge request !%d not found in project %s", iid, project),
			}
		}

		return reviewResult(data.Project.MergeRequest), nil
	})
}

func reviewResult(mr *mergeRequest) provider.ReviewResult {
	result := provider.ReviewResult{
		Title:        mr.Title,
		Author:       username(mr.Author),
		State:        mr.State,
		URL:          mr.WebURL,
		CreatedAt:    mr.CreatedAt,
		UpdatedAt:    mr.UpdatedAt,
		Additions:    mr.DiffStatsSummary.Additions,
		Deletions:    mr.DiffStatsSummary.Deletions,
		ChangedFiles: mr.DiffStatsSummary.FileCount,
		Commits:      mr.CommitCount,
		Labels:       make([]string, 0, len(mr.Labels.Nodes)),
		Files:        make([]provider.FileChange, 0, len(mr.DiffStats)),
		Reviews:      []provider.ReviewComment{},
		Checks:       []provider.CheckResult{},
	}

	for _, l := range mr.Labels.Nodes {
		result.Labels = append(result.Labels, l.Title)
	}

	// diffStats carries no change type
	for _, d := range mr.DiffStats {
		result.Files = append(result.Files, provider.FileChange{
			Path:      d.Path,
			Additions: d.Additions,
			Deletions: d.Deletions,
			Status:    "modified",
		})
	}

	if p := mr.HeadPipeline; p != nil {
		result.Checks = append(result.Checks, provider.CheckResult{Name: "pipeline", Status: p.Status, Conclusion: p.Status})
		for _, stage := range p.Stages.Nodes {
			for _, job := range stage.Jobs.Nodes {
				result.Checks = append(result.Checks, provider.CheckResult{
					Name:       stage.Name + "/" + job.Name,
					Status:     job.Status,
					Conclusion: job.Status,
				})
			}
		}
	}

	for _, n := range mr.Notes.Nodes {
		if n.System || n.Body == "" {
			continue
		}

		state := "COMMENTED"
		if n.Resolvable {
			state = "PENDING"
			if n.Resolved {
				state = "RESOLVED"
			}
		}

		result.Reviews = append(result.Reviews, provider.ReviewComment{
			Author:      username(n.Author),
			State:       state,
			Body:        n.Body,
			SubmittedAt: n.CreatedAt,
		})
	}

	for _, approver := range mr.ApprovedBy.Nodes {
		result.Reviews = append(result.Reviews, provider.ReviewComment{
			Author:      approver.Username,
			State:       "APPROVED",
			SubmittedAt: mr.UpdatedAt,
		})
	}

	return result
}

func username(u *user) string {
	if u == nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}

// MergedMRCount counts the merge requests merged since the given date, with
// their average size in changed lines.
func (c *Client) MergedMRCount(ctx context.Context, project, since string) (provider.MergedCount, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "gitlab.merged_count",
		Key:       cache.Key("gl", "merged-count", scope.Fold(project), since),
		TTL:       cache.TTLSprint,
		Authorize: func() error { return c.guard.CheckGitLab(project) },
	}, func(ctx context.Context) (provider.MergedCount, error) {
		var mrs []struct {
			// a string, and "1000+" for very large changes
			ChangesCount string `json:"changes_count"`
		}

		path := "/api/v4/projects/" + url.PathEscape(project) + "/merge_requests"
		err := c.api.Get(ctx, path, url.Values{
			"state":         {"merged"},
			"created_after": {since},
			"per_page":      {"100"},
		}, &mrs)
		if err != nil {
			return provider.MergedCount{}, err
		}

		count := provider.MergedCount{Count: len(mrs)}
		if len(mrs) > 0 {
			total := 0
			for _, mr := range mrs {
				n, _ := strconv.Atoi(strings.TrimSuffix(mr.ChangesCount, "+"))
				total += n
			}
			count.AvgLines = int(math.Round(float64(total) / float64(len(mrs))))
		}

		return count, nil
	})
}
