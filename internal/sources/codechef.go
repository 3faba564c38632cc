package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"skillTrackerAPI/internal/types/profile"
)

const codeChefURL = "https://www.codechef.com"

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// CodeChef scrapes the public profile page; the site offers no stats API.
type CodeChef struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewCodeChef(opts Options) *CodeChef {
	return &CodeChef{
		baseURL: codeChefURL,
		client:  opts.httpClient(),
		limiter: opts.limiter(),
	}
}

func (c *CodeChef) WithBaseURL(u string) *CodeChef {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

func (c *CodeChef) Platform() profile.Platform { return profile.CodeChef }

func (c *CodeChef) Fetch(ctx context.Context, username string) (profile.Stats, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return profile.Stats{}, err
	}

	endpoint := c.baseURL + "/users/" + url.PathEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return profile.Stats{}, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return profile.Stats{}, fmt.Errorf("codechef request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return profile.Stats{}, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return profile.Stats{}, &statusError{url: endpoint, code: resp.StatusCode}
	}

	// Unknown users are redirected to the landing page.
	if p := strings.TrimRight(resp.Request.URL.Path, "/"); p == "" {
		return profile.Stats{}, ErrUserNotFound
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return profile.Stats{}, fmt.Errorf("parse codechef page: %w", err)
	}
	return parseCodeChefProfile(doc)
}

var errCodeChefLayout = errors.New("codechef profile page has no stats section")

func parseCodeChefProfile(doc *html.Node) (profile.Stats, error) {
	var stats profile.Stats

	rating := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "div" && hasClass(n, "rating-number")
	})
	problems := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "section" && hasClass(n, "rating-data-section") && hasClass(n, "problems-solved")
	})
	if rating == nil && problems == nil {
		return stats, errCodeChefLayout
	}

	if rating != nil {
		stats.Rating = parseMetric(textContent(rating))
	}

	if problems != nil {
		headings := findAll(problems, func(n *html.Node) bool { return n.Data == "h3" })
		if len(headings) > 0 {
			text := textContent(headings[len(headings)-1])
			if idx := strings.LastIndex(text, ":"); idx >= 0 {
				stats.ProblemsSolved = parseMetric(text[idx+1:])
			}
		}
	}

	contests := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "div" && hasClass(n, "contest-participated-count")
	})
	if contests != nil {
		if b := findFirst(contests, func(n *html.Node) bool { return n.Data == "b" }); b != nil {
			stats.ContestsAttended = parseMetric(textContent(b))
		}
	}
	return stats, nil
}

func parseMetric(s string) profile.Metric {
	s = strings.TrimSpace(s)
	// Ratings render as "1650?" for provisional values.
	s = strings.TrimRight(s, "?*")
	v, err := strconv.Atoi(s)
	if err != nil {
		return profile.Unknown
	}
	return profile.Known(v)
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
