package surface

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// WebSearch resolves a query to its top result URL without driving a
// results page.
type WebSearch struct {
	client *duckduckgo.Tool
}

func NewWebSearch() (*WebSearch, error) {
	ddg, err := duckduckgo.New(5, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &WebSearch{client: ddg}, nil
}

// TopResult returns the first result URL for query.
func (s *WebSearch) TopResult(ctx context.Context, query string) (string, error) {
	res, err := s.client.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	u := firstURL(res)
	if u == "" {
		return "", fmt.Errorf("search returned no links for %q", query)
	}
	return u, nil
}

var resultURL = regexp.MustCompile(`(?m)^URL:\s*(\S+)`)

func firstURL(results string) string {
	if m := resultURL.FindStringSubmatch(results); m != nil {
		return m[1]
	}
	return ""
}

// SearchURL is the results page opened when no search API is used.
func SearchURL(query string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(query)
}

// NormalizeURL turns "google.com/flights" into an absolute URL. It returns
// "" when s does not look like a location.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return ""
	}
	if !strings.Contains(s, "://") {
		if !strings.Contains(s, ".") && !strings.HasPrefix(s, "localhost") {
			return ""
		}
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.String()
}
