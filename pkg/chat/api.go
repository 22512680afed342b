package chat

import "context"

// ChatMode selects which pre-processing stages run for a send.
type ChatMode string

const (
	// ModeChat sends the message as-is (plus any scraped URLs).
	ModeChat ChatMode = "chat"
	// ModeWeb optimizes the query and augments the prompt with search results.
	ModeWeb ChatMode = "web"
	// ModePage augments the prompt with the active page's content.
	ModePage ChatMode = "page"
)

// AuthContext is passed through to transports and strategies untouched;
// header construction is their concern.
type AuthContext struct {
	APIKey string
}

// Request is the assembled model request handed to an execution strategy.
type Request struct {
	Model        string
	SystemPrompt string
	Message      string
	History      []Turn
	Auth         AuthContext
}

// Scraper fetches the text content of a URL mentioned in the user message.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// QueryOptimizer rewrites the user query for web search, given prior turns
// as context.
type QueryOptimizer interface {
	Optimize(ctx context.Context, message string, history []Turn) (string, error)
}

// WebSearcher executes a search and returns a textual summary.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// PageReader supplies the active browser tab's content; PDF URLs are
// special-cased by the implementation.
type PageReader interface {
	ActiveTabContent(ctx context.Context) (string, error)
}

// ChunkFunc receives streaming chunks from a direct transport. chunk
// carries the full accumulated text; it may be called zero or more times
// with finished=false, then exactly once with finished=true (success) or
// isErr=true (failure, chunk holds the message).
type ChunkFunc func(chunk string, finished bool, isErr bool)

// StreamingTransport performs a direct streaming model call against a
// resolved endpoint.
type StreamingTransport interface {
	Stream(ctx context.Context, endpoint string, req Request, onChunk ChunkFunc) error
}

// UpdateFunc receives accumulated text from a multi-step compute strategy,
// with the same single-terminal-call contract as ChunkFunc.
type UpdateFunc func(text string, finished bool)

// ComputeStrategy runs a multi-step pipeline (medium or high compute
// level). Retry and step structure are internal to the strategy.
type ComputeStrategy interface {
	Run(ctx context.Context, req Request, onUpdate UpdateFunc) error
}
