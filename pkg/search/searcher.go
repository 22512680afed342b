// Package search implements the WebSearcher collaborator against a
// SearxNG-style JSON search endpoint.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

const defaultMaxResults = 5

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// HTTPSearcher queries a JSON search endpoint and formats the top results
// as a prompt fragment.
type HTTPSearcher struct {
	baseURL    string
	httpClient *http.Client
	maxResults int
	logger     zerolog.Logger
}

func NewHTTPSearcher(baseURL string, logger zerolog.Logger) *HTTPSearcher {
	return &HTTPSearcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxResults: defaultMaxResults,
		logger:     logger.With().Str("component", "search").Logger(),
	}
}

func (s *HTTPSearcher) Search(ctx context.Context, query string) (string, error) {
	if s.baseURL == "" {
		return "", errors.Wrap(chat.ErrConfig, "no search endpoint configured")
	}
	u := s.baseURL + "?format=json&q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", errors.Wrapf(chat.ErrSearch, "build search request: %v", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(chat.ErrCancelled, "search aborted")
		}
		return "", errors.Wrapf(chat.ErrSearch, "query %q: %v", query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrapf(chat.ErrSearch, "query %q: %s", query, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrapf(chat.ErrSearch, "read search response: %v", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrapf(chat.ErrSearch, "decode search response: %v", err)
	}
	s.logger.Debug().Str("query", query).Int("results", len(parsed.Results)).Msg("search complete")
	return formatResults(parsed.Results, s.maxResults), nil
}

// formatResults renders results as numbered title/url/snippet blocks.
func formatResults(results []searchResult, max int) string {
	if len(results) == 0 {
		return "No results found."
	}
	if len(results) > max {
		results = results[:max]
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s", i+1, r.Title, r.URL)
		if snippet := strings.TrimSpace(r.Content); snippet != "" {
			b.WriteString("\n")
			b.WriteString(snippet)
		}
	}
	return b.String()
}
