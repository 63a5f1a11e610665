package verify

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/resilience"
	"github.com/dailyworker/newsroom/pkg/jina"
)

// Candidate is one source suggested by the web-search collaborator.
type Candidate struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher finds candidate sources for a topic. Implementations are
// best-effort; an empty result is not an error.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// JinaSearcher adapts the Jina search API to Searcher, retrying transient
// failures behind a circuit breaker.
type JinaSearcher struct {
	client  jina.Client
	breaker *resilience.Breaker
	policy  resilience.Policy
}

// NewJinaSearcher wraps client with the given retry policy and breaker.
func NewJinaSearcher(client jina.Client, breaker *resilience.Breaker, policy resilience.Policy) *JinaSearcher {
	if breaker == nil {
		breaker = resilience.NewBreaker("jina", resilience.BreakerConfig{})
	}
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetry("jina", "search")
	}
	return &JinaSearcher{client: client, breaker: breaker, policy: policy}
}

// Search implements Searcher.
func (s *JinaSearcher) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	resp, err := resilience.Protect(ctx, s.breaker, s.policy, func(ctx context.Context) (*jina.SearchResponse, error) {
		resp, err := s.client.Search(ctx, query, jina.WithNumResults(limit))
		var apiErr *jina.APIError
		if errors.As(err, &apiErr) && apiErr.Temporary() {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return resp, err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "verify: search %q", query)
	}

	out := make([]Candidate, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL == "" {
			continue
		}
		snippet := r.Description
		if snippet == "" {
			snippet = r.Content
		}
		out = append(out, Candidate{Title: r.Title, URL: r.URL, Snippet: snippet})
	}
	return out, nil
}

// academicSuffixes and academicHosts identify scholarly outlets.
var (
	academicSuffixes = []string{".edu", ".ac.uk", ".ac.jp", ".edu.au", ".ac.nz"}
	academicHosts    = map[string]bool{
		"arxiv.org":               true,
		"doi.org":                 true,
		"jstor.org":               true,
		"nber.org":                true,
		"ssrn.com":                true,
		"pubmed.ncbi.nlm.nih.gov": true,
		"scholar.google.com":      true,
		"journals.sagepub.com":    true,
		"onlinelibrary.wiley.com": true,
		"link.springer.com":       true,
		"sciencedirect.com":       true,
	}
)

// DomainOf returns the lower-cased host of rawURL without a leading "www.".
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsAcademicDomain reports whether domain belongs to a scholarly outlet.
func IsAcademicDomain(domain string) bool {
	if academicHosts[domain] {
		return true
	}
	for _, s := range academicSuffixes {
		if strings.HasSuffix(domain, s) {
			return true
		}
	}
	return false
}
