package chat

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// scrapeErrorPlaceholder substitutes for scraped content when any URL
// fails, so a dead link never fails the whole send.
const scrapeErrorPlaceholder = "[Error scraping one or more URLs]"

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// DetectURLs extracts http(s) URLs from the raw message. Trailing
// punctuation is trimmed so "see https://a.example." scrapes cleanly.
func DetectURLs(message string) []string {
	matches := urlPattern.FindAllString(message, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)")
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Pipeline runs the optional pre-processing stages of a send in fixed
// order: URL scrape, query optimization, web search, page acquisition.
// Stages fail independently; only search failures (and cancellation)
// abort the send.
type Pipeline struct {
	scraper   Scraper
	optimizer QueryOptimizer
	searcher  WebSearcher
	pages     PageReader
	logger    zerolog.Logger
}

func NewPipeline(scraper Scraper, optimizer QueryOptimizer, searcher WebSearcher, pages PageReader, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		scraper:   scraper,
		optimizer: optimizer,
		searcher:  searcher,
		pages:     pages,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// PipelineResult carries the context fragments acquired for one send plus
// the query that was (or would have been) searched.
type PipelineResult struct {
	Scraped           string
	Web               string
	Page              string
	Query             string
	UsedFallbackQuery bool
}

// Run executes the stages. A returned error is either a cancellation
// (handled silently by the caller) or a search failure (terminates the
// send with an error turn).
func (p *Pipeline) Run(ctx context.Context, mode ChatMode, message string, history []Turn) (PipelineResult, error) {
	res := PipelineResult{Query: message}

	if err := ctx.Err(); err != nil {
		return res, errors.Wrap(ErrCancelled, "pipeline aborted before start")
	}

	res.Scraped = p.scrapeStage(ctx, message)
	if err := ctx.Err(); err != nil {
		return res, errors.Wrap(ErrCancelled, "pipeline aborted after scrape")
	}

	if mode == ModeWeb {
		if err := p.optimizeStage(ctx, message, history, &res); err != nil {
			return res, err
		}
		if err := p.searchStage(ctx, &res); err != nil {
			return res, err
		}
	}

	if mode == ModePage {
		if err := p.pageStage(ctx, &res); err != nil {
			return res, err
		}
	}

	return res, nil
}

// scrapeStage fetches all URLs found in the message concurrently. Any
// failure degrades to the fixed placeholder fragment.
func (p *Pipeline) scrapeStage(ctx context.Context, message string) string {
	urls := DetectURLs(message)
	if len(urls) == 0 || p.scraper == nil {
		return ""
	}
	texts := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			text, err := p.scraper.Scrape(gctx, u)
			if err != nil {
				return errors.Wrapf(ErrStage, "scrape %s: %v", u, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Warn().Err(err).Int("urls", len(urls)).Msg("scrape stage degraded to placeholder")
		return scrapeErrorPlaceholder
	}
	return strings.Join(texts, "\n\n")
}

// optimizeStage rewrites the query for search. Failure falls back to the
// original query and records the fallback for display.
func (p *Pipeline) optimizeStage(ctx context.Context, message string, history []Turn, res *PipelineResult) error {
	if p.optimizer == nil {
		return nil
	}
	optimized, err := p.optimizer.Optimize(ctx, message, history)
	if err != nil {
		if IsCancelled(err) || ctx.Err() != nil {
			return errors.Wrap(ErrCancelled, "query optimization cancelled")
		}
		p.logger.Warn().Err(err).Msg("query optimization failed, using original query")
		res.UsedFallbackQuery = true
		return nil
	}
	if q := strings.TrimSpace(optimized); q != "" {
		res.Query = q
	}
	return nil
}

// searchStage is load-bearing in web mode: a non-cancellation failure
// escalates to a terminal error for the whole send.
func (p *Pipeline) searchStage(ctx context.Context, res *PipelineResult) error {
	if p.searcher == nil {
		return errors.Wrap(ErrConfig, "web mode requires a searcher")
	}
	result, err := p.searcher.Search(ctx, res.Query)
	if err != nil {
		if IsCancelled(err) || ctx.Err() != nil {
			return errors.Wrap(ErrCancelled, "web search cancelled")
		}
		return errors.Wrapf(ErrSearch, "%v", err)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrCancelled, "pipeline aborted after search")
	}
	res.Web = result
	return nil
}

// pageStage reads the active tab. Errors degrade to an inline error string
// inside the fragment rather than aborting.
func (p *Pipeline) pageStage(ctx context.Context, res *PipelineResult) error {
	if p.pages == nil {
		return nil
	}
	content, err := p.pages.ActiveTabContent(ctx)
	if err != nil {
		if IsCancelled(err) || ctx.Err() != nil {
			return errors.Wrap(ErrCancelled, "page read cancelled")
		}
		p.logger.Warn().Err(err).Msg("page read failed, degrading to inline error")
		res.Page = "[Error reading page content: " + err.Error() + "]"
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrCancelled, "pipeline aborted after page read")
	}
	res.Page = content
	return nil
}
