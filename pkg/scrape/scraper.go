// Package scrape provides default implementations of the Scraper and
// PageReader collaborators: a plain HTTP fetcher with crude HTML-to-text
// stripping, and a cached-page reader with a PDF extraction hook.
package scrape

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

const defaultMaxBodyBytes = 512 * 1024

var (
	scriptPattern     = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagPattern        = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// HTTPScraper fetches a URL and reduces its HTML to readable text.
type HTTPScraper struct {
	httpClient *http.Client
	maxBody    int64
	userAgent  string
	logger     zerolog.Logger
}

func NewHTTPScraper(logger zerolog.Logger) *HTTPScraper {
	return &HTTPScraper{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		maxBody:    defaultMaxBodyBytes,
		userAgent:  "sidekick/1.0",
		logger:     logger.With().Str("component", "scrape").Logger(),
	}
}

func (s *HTTPScraper) Scrape(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(chat.ErrStage, "build scrape request: %v", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(chat.ErrCancelled, "scrape aborted")
		}
		return "", errors.Wrapf(chat.ErrStage, "fetch %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrapf(chat.ErrStage, "fetch %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(chat.ErrCancelled, "scrape aborted mid-read")
		}
		return "", errors.Wrapf(chat.ErrStage, "read %s: %v", url, err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") || looksLikeHTML(text) {
		text = StripHTML(text)
	}
	s.logger.Debug().Str("url", url).Int("chars", len(text)).Msg("scraped url")
	return text, nil
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(s)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// StripHTML reduces an HTML document to whitespace-normalized text.
func StripHTML(html string) string {
	text := scriptPattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, "\n")
	text = unescapeEntities(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		lines = append(lines, strings.TrimSpace(line))
	}
	text = strings.Join(lines, "\n")
	text = blankLinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func unescapeEntities(s string) string {
	return entityReplacer.Replace(s)
}
