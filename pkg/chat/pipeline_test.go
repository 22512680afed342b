package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	byURL map[string]string
	err   error
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.byURL[url], nil
}

type fakeOptimizer struct {
	out string
	err error
}

func (f *fakeOptimizer) Optimize(_ context.Context, _ string, _ []Turn) (string, error) {
	return f.out, f.err
}

type fakeSearcher struct {
	out       string
	err       error
	gotQuery  string
	callCount int
}

func (f *fakeSearcher) Search(_ context.Context, query string) (string, error) {
	f.gotQuery = query
	f.callCount++
	return f.out, f.err
}

type fakePages struct {
	out string
	err error
}

func (f *fakePages) ActiveTabContent(_ context.Context) (string, error) {
	return f.out, f.err
}

func TestDetectURLs(t *testing.T) {
	urls := DetectURLs("see https://example.com/a and http://other.org/b?q=1, nothing else")
	require.Len(t, urls, 2)
	assert.Equal(t, "https://example.com/a", urls[0])
	assert.Equal(t, "http://other.org/b?q=1", urls[1])

	assert.Empty(t, DetectURLs("no links here"))
}

func TestScrapeStageJoinsResults(t *testing.T) {
	scraper := &fakeScraper{byURL: map[string]string{
		"https://a.example": "content A",
		"https://b.example": "content B",
	}}
	p := NewPipeline(scraper, nil, nil, nil, zerolog.Nop())
	res, err := p.Run(context.Background(), ModeChat, "read https://a.example then https://b.example", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Scraped, "content A")
	assert.Contains(t, res.Scraped, "content B")
}

func TestScrapeStageFailureDegradesToPlaceholder(t *testing.T) {
	p := NewPipeline(&fakeScraper{err: errors.New("404")}, nil, nil, nil, zerolog.Nop())
	res, err := p.Run(context.Background(), ModeChat, "read https://dead.example please", nil)
	require.NoError(t, err, "scrape failure must not fail the send")
	assert.Equal(t, "[Error scraping one or more URLs]", res.Scraped)
}

func TestOptimizerFallbackIsRecorded(t *testing.T) {
	searcher := &fakeSearcher{out: "results"}
	p := NewPipeline(nil, &fakeOptimizer{err: errors.New("model unavailable")}, searcher, nil, zerolog.Nop())
	res, err := p.Run(context.Background(), ModeWeb, "original query", nil)
	require.NoError(t, err)
	assert.True(t, res.UsedFallbackQuery)
	assert.Equal(t, "original query", searcher.gotQuery)
	assert.Equal(t, "results", res.Web)
}

func TestOptimizedQueryIsUsed(t *testing.T) {
	searcher := &fakeSearcher{out: "results"}
	p := NewPipeline(nil, &fakeOptimizer{out: "better query"}, searcher, nil, zerolog.Nop())
	res, err := p.Run(context.Background(), ModeWeb, "original query", nil)
	require.NoError(t, err)
	assert.False(t, res.UsedFallbackQuery)
	assert.Equal(t, "better query", searcher.gotQuery)
}

func TestSearchFailureEscalates(t *testing.T) {
	p := NewPipeline(nil, &fakeOptimizer{out: "q"}, &fakeSearcher{err: errors.New("search backend down")}, nil, zerolog.Nop())
	_, err := p.Run(context.Background(), ModeWeb, "query", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSearch))
	assert.False(t, IsCancelled(err))
}

func TestSearchCancellationIsSilent(t *testing.T) {
	p := NewPipeline(nil, &fakeOptimizer{out: "q"}, &fakeSearcher{err: context.Canceled}, nil, zerolog.Nop())
	_, err := p.Run(context.Background(), ModeWeb, "query", nil)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
}

func TestPageStageErrorDegradesInline(t *testing.T) {
	p := NewPipeline(nil, nil, nil, &fakePages{err: errors.New("tab gone")}, zerolog.Nop())
	res, err := p.Run(context.Background(), ModePage, "summarize this", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Page, "[Error reading page content:"))
}

func TestPageStageReadsContent(t *testing.T) {
	p := NewPipeline(nil, nil, nil, &fakePages{out: "the page text"}, zerolog.Nop())
	res, err := p.Run(context.Background(), ModePage, "summarize this", nil)
	require.NoError(t, err)
	assert.Equal(t, "the page text", res.Page)
}

func TestPipelineAbortsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	searcher := &fakeSearcher{out: "results"}
	p := NewPipeline(nil, nil, searcher, nil, zerolog.Nop())
	_, err := p.Run(ctx, ModeWeb, "query", nil)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Zero(t, searcher.callCount, "stages must check the scope before starting")
}
