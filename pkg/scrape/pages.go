package scrape

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

// PDFExtractor turns a PDF URL into text. Extraction mechanics live with
// the embedder; the reader only routes PDF pages here.
type PDFExtractor interface {
	Extract(ctx context.Context, pdfURL string) (string, error)
}

// CachedPageReader implements the PageReader collaborator over a cached
// "active tab": the embedding UI pushes the current page's URL and text,
// and page-mode sends read it back. PDF URLs are special-cased through the
// extractor instead of the cache.
type CachedPageReader struct {
	mu      sync.RWMutex
	pageURL string
	content string
	pdf     PDFExtractor
}

func NewCachedPageReader(pdf PDFExtractor) *CachedPageReader {
	return &CachedPageReader{pdf: pdf}
}

// SetActivePage records the page the user is currently on.
func (r *CachedPageReader) SetActivePage(pageURL, content string) {
	r.mu.Lock()
	r.pageURL = pageURL
	r.content = content
	r.mu.Unlock()
}

func (r *CachedPageReader) ActiveTabContent(ctx context.Context) (string, error) {
	r.mu.RLock()
	pageURL, content := r.pageURL, r.content
	r.mu.RUnlock()

	if pageURL == "" && content == "" {
		return "", errors.Wrap(chat.ErrStage, "no active page")
	}
	if IsPDFURL(pageURL) {
		if r.pdf == nil {
			return "", errors.Wrap(chat.ErrStage, "pdf extraction is not available")
		}
		text, err := r.pdf.Extract(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return "", errors.Wrap(chat.ErrCancelled, "pdf extraction aborted")
			}
			return "", errors.Wrapf(chat.ErrStage, "extract pdf %s: %v", pageURL, err)
		}
		return text, nil
	}
	return content, nil
}

// IsPDFURL reports whether the URL path points at a PDF document.
func IsPDFURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
