package github

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/provider"
)

// TeamStats summarizes the pull requests merged into a repository over a
// period, per contributor.
type TeamStats struct {
	Period       string             `json:"period"`
	Repo         string             `json:"repo"`
	Contributors []ContributorStats `json:"contributors"`
	Summary      StatsSummary       `json:"summary"`
}

type ContributorStats struct {
	Login             string  `json:"login"`
	PRsAuthored       int     `json:"prs_authored"`
	PRsReviewed       int     `json:"prs_reviewed"`
	Additions         int     `json:"additions"`
	Deletions         int     `json:"deletions"`
	AvgMergeTimeHours float64 `json:"avg_merge_time_hours"`
}

type StatsSummary struct {
	TotalPRs int `json:"total_prs"`
	// TotalReviews counts distinct reviewers, not reviews.
	TotalReviews      int     `json:"total_reviews"`
	AvgMergeTimeHours float64 `json:"avg_merge_time_hours"`
	TotalAdditions    int     `json:"total_additions"`
	TotalDeletions    int     `json:"total_deletions"`
}

const teamStatsQuery = `
query TeamStats($searchQuery: String!) {
  search(query: $searchQuery, type: ISSUE, first: 100) {
    nodes {
      ... on PullRequest {
        number
        author { login }
        additions
        deletions
        createdAt
        mergedAt
        reviews(first: 20) {
          nodes { author { login } }
        }
      }
    }
  }
}`

const mergedCountQuery = `
query MergedPRs($searchQuery: String!) {
  search(query: $searchQuery, type: ISSUE, first: 100) {
    issueCount
    nodes {
      ... on PullRequest {
        additions
        deletions
      }
    }
  }
}`

type actor struct {
	Login string `json:"login"`
}

type mergedPullRequest struct {
	Number    int        `json:"number"`
	Author    *actor     `json:"author"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	CreatedAt *time.Time `json:"createdAt"`
	MergedAt  *time.Time `json:"mergedAt"`
	Reviews   struct {
		Nodes []struct {
			Author *actor `json:"author"`
		} `json:"nodes"`
	} `json:"reviews"`
}

type searchResult struct {
	Search struct {
		IssueCount int                 `json:"issueCount"`
		Nodes      []mergedPullRequest `json:"nodes"`
	} `json:"search"`
}

// TeamStats aggregates the pull requests merged between since and until
// (YYYY-MM-DD, inclusive). An empty until means today.
func (c *Client) TeamStats(ctx context.Context, owner, repo, since, until string) (TeamStats, error) {
	if until == "" {
		until = c.now().UTC().Format(time.DateOnly)
	}

	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "github.team_stats",
		Key:       cache.Key("gh", "team-stats", repoKey(owner, repo), since, until),
		TTL:       cache.TTLStats,
		Authorize: func() error { return c.guard.CheckGitHub(owner, repo) },
	}, func(ctx context.Context) (TeamStats, error) {
		var result searchResult
		err := c.graphQL(ctx, teamStatsQuery, map[string]any{
			"searchQuery": fmt.Sprintf("repo:%s/%s is:pr is:merged merged:%s..%s", owner, repo, since, until),
		}, &result)
		if err != nil {
			return TeamStats{}, err
		}

		stats := aggregateTeamStats(result.Search.Nodes)
		stats.Period = since + ".." + until
		stats.Repo = owner + "/" + repo

		return stats, nil
	})
}

func aggregateTeamStats(prs []mergedPullRequest) TeamStats {
	contributors := map[string]*ContributorStats{}
	mergeHours := map[string]float64{}
	reviewers := map[string]struct{}{}

	contributor := func(login string) *ContributorStats {
		s, ok := contributors[login]
		if !ok {
			s = &ContributorStats{Login: login}
			contributors[login] = s
		}
		return s
	}

	var summary StatsSummary
	var totalHours float64

	for _, pr := range prs {
		authorLogin := "unknown"
		if pr.Author != nil && pr.Author.Login != "" {
			authorLogin = pr.Author.Login
		}

		author := contributor(authorLogin)
		author.PRsAuthored++
		author.Additions += pr.Additions
		author.Deletions += pr.Deletions
		summary.TotalAdditions += pr.Additions
		summary.TotalDeletions += pr.Deletions

		if pr.CreatedAt != nil && pr.MergedAt != nil {
			hours := pr.MergedAt.Sub(*pr.CreatedAt).Hours()
			totalHours += hours
			mergeHours[authorLogin] += hours
		}

		for _, review := range pr.Reviews.Nodes {
			if review.Author == nil || review.Author.Login == "" || review.Author.Login == authorLogin {
				continue
			}
			contributor(review.Author.Login).PRsReviewed++
			reviewers[review.Author.Login] = struct{}{}
		}
	}

	list := make([]ContributorStats, 0, len(contributors))
	for login, s := range contributors {
		if s.PRsAuthored > 0 {
			s.AvgMergeTimeHours = roundTenth(mergeHours[login] / float64(s.PRsAuthored))
		}
		list = append(list, *s)
	}

	slices.SortFunc(list, func(a, b ContributorStats) int {
		if n := cmp.Compare(b.PRsAuthored, a.PRsAuthored); n != 0 {
			return n
		}
		return cmp.Compare(a.Login, b.Login)
	})

	summary.TotalPRs = len(prs)
	summary.TotalReviews = len(reviewers)
	if len(prs) > 0 {
		summary.AvgMergeTimeHours = roundTenth(totalHours / float64(len(prs)))
	}

	return TeamStats{
		Contributors: list,
		Summary:      summary,
	}
}

// MergedPRCount counts the pull requests merged since the given date, with
// their average size in changed lines.
func (c *Client) MergedPRCount(ctx context.Context, owner, repo, since string) (provider.MergedCount, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "github.merged_count",
		Key:       cache.Key("gh", "merged-count", repoKey(owner, repo), since),
		TTL:       cache.TTLSprint,
		Authorize: func() error { return c.guard.CheckGitHub(owner, repo) },
	}, func(ctx context.Context) (provider.MergedCount, error) {
		var result searchResult
		err := c.graphQL(ctx, mergedCountQuery, map[string]any{
			"searchQuery": fmt.Sprintf("repo:%s/%s is:pr is:merged merged:>=%s", owner, repo, since),
		}, &result)
		if err != nil {
			return provider.MergedCount{}, err
		}

		count := provider.MergedCount{Count: result.Search.IssueCount}
		if n := len(result.Search.Nodes); n > 0 {
			total := 0
			for _, pr := range result.Search.Nodes {
				total += pr.Additions + pr.Deletions
			}
			count.AvgLines = int(math.Round(float64(total) / float64(n)))
		}

		return count, nil
	})
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
