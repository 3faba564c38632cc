package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"golang.org/x/time/rate"

	"skillTrackerAPI/internal/types/profile"
)

const leetCodeGraphQLURL = "https://leetcode.com/graphql"

const leetCodeQuery = `query userStats($username: String!) {
  matchedUser(username: $username) {
    username
    submitStats: submitStatsGlobal {
      acSubmissionNum { difficulty count submissions }
    }
  }
  userContestRanking(username: $username) {
    attendedContestsCount
    rating
  }
}`

type LeetCode struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewLeetCode(opts Options) *LeetCode {
	return &LeetCode{
		endpoint: leetCodeGraphQLURL,
		client:   opts.httpClient(),
		limiter:  opts.limiter(),
	}
}

// WithEndpoint points the adapter at another GraphQL endpoint.
func (l *LeetCode) WithEndpoint(url string) *LeetCode {
	l.endpoint = url
	return l
}

func (l *LeetCode) Platform() profile.Platform { return profile.LeetCode }

type leetCodeResponse struct {
	Data struct {
		MatchedUser *struct {
			Username    string `json:"username"`
			SubmitStats struct {
				AcSubmissionNum []struct {
					Difficulty string `json:"difficulty"`
					Count      int    `json:"count"`
				} `json:"acSubmissionNum"`
			} `json:"submitStats"`
		} `json:"matchedUser"`
		UserContestRanking *struct {
			AttendedContestsCount *int     `json:"attendedContestsCount"`
			Rating                *float64 `json:"rating"`
		} `json:"userContestRanking"`
	} `json:"data"`
}

func (l *LeetCode) Fetch(ctx context.Context, username string) (profile.Stats, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return profile.Stats{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"query":     leetCodeQuery,
		"variables": map[string]string{"username": username},
	})
	if err != nil {
		return profile.Stats{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(payload))
	if err != nil {
		return profile.Stats{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", "https://leetcode.com")

	resp, err := l.client.Do(req)
	if err != nil {
		return profile.Stats{}, fmt.Errorf("leetcode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return profile.Stats{}, &statusError{url: l.endpoint, code: resp.StatusCode}
	}

	var body leetCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return profile.Stats{}, fmt.Errorf("decode leetcode response: %w", err)
	}

	if body.Data.MatchedUser == nil {
		return profile.Stats{}, ErrUserNotFound
	}

	// acSubmissionNum holds an "All" bucket plus one per difficulty.
	total := 0
	for _, bucket := range body.Data.MatchedUser.SubmitStats.AcSubmissionNum {
		total += bucket.Count
	}

	stats := profile.Stats{ProblemsSolved: profile.Known(total / 2)}
	if ranking := body.Data.UserContestRanking; ranking != nil {
		if ranking.Rating != nil {
			stats.Rating = profile.Known(int(math.Trunc(*ranking.Rating)))
		}
		if ranking.AttendedContestsCount != nil {
			stats.ContestsAttended = profile.Known(*ranking.AttendedContestsCount)
		}
	}
	return stats, nil
}
