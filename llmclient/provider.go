package llmclient

import "context"

// Provider is a model adapter. Implementations translate between the flat
// types in this package and a concrete SDK's wire format.
type Provider interface {
	// ID returns the provider identifier (e.g. "openai", "gollm").
	ID() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream opens a streamed completion. The returned channel delivers
	// fragments in arrival order and is closed after the terminal chunk.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}
