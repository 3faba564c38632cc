package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"skillTrackerAPI/internal/types/profile"
)

const codeforcesAPIURL = "https://codeforces.com/api"

type Codeforces struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewCodeforces(opts Options) *Codeforces {
	return &Codeforces{
		baseURL: codeforcesAPIURL,
		client:  opts.httpClient(),
		limiter: opts.limiter(),
	}
}

func (c *Codeforces) WithBaseURL(u string) *Codeforces {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

func (c *Codeforces) Platform() profile.Platform { return profile.Codeforces }

type codeforcesEnvelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

type codeforcesUser struct {
	Handle string `json:"handle"`
	Rating *int   `json:"rating"`
}

type codeforcesSubmission struct {
	Verdict string `json:"verdict"`
	Problem struct {
		ContestID int    `json:"contestId"`
		Index     string `json:"index"`
	} `json:"problem"`
}

func (c *Codeforces) Fetch(ctx context.Context, username string) (profile.Stats, error) {
	var users []codeforcesUser
	if err := c.call(ctx, "user.info", url.Values{"handles": {username}}, &users); err != nil {
		return profile.Stats{}, err
	}
	if len(users) == 0 {
		return profile.Stats{}, ErrUserNotFound
	}

	var stats profile.Stats
	if users[0].Rating != nil {
		stats.Rating = profile.Known(*users[0].Rating)
	}

	var submissions []codeforcesSubmission
	if err := c.call(ctx, "user.status", url.Values{"handle": {username}}, &submissions); err != nil {
		return profile.Stats{}, err
	}
	solved := make(map[string]struct{})
	for _, s := range submissions {
		if s.Verdict != "OK" {
			continue
		}
		solved[fmt.Sprintf("%d%s", s.Problem.ContestID, s.Problem.Index)] = struct{}{}
	}
	stats.ProblemsSolved = profile.Known(len(solved))

	var ratingChanges []json.RawMessage
	if err := c.call(ctx, "user.rating", url.Values{"handle": {username}}, &ratingChanges); err != nil {
		return profile.Stats{}, err
	}
	stats.ContestsAttended = profile.Known(len(ratingChanges))

	return stats, nil
}

// call performs one API method and decodes its result into out. A FAILED
// status mentioning the handle maps to ErrUserNotFound.
func (c *Codeforces) call(ctx context.Context, method string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + "/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("codeforces %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env codeforcesEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &statusError{url: endpoint, code: resp.StatusCode}
		}
		return fmt.Errorf("decode codeforces %s: %w", method, err)
	}

	if env.Status != "OK" {
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(env.Comment), "not found") {
			return ErrUserNotFound
		}
		return fmt.Errorf("codeforces %s failed (HTTP %d): %s", method, resp.StatusCode, env.Comment)
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode codeforces %s result: %w", method, err)
	}
	return nil
}
