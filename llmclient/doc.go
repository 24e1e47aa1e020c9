// Package llmclient defines the boundary between the agent runtime and the
// language model: flat conversation messages, tool definitions, streamed
// completion fragments, and the provider adapters that produce them.
//
// # Contract
//
// A Provider accepts a Request and returns either a single Response
// (Complete) or a channel of StreamChunk fragments (Stream). The runtime
// relies on three properties only: fragments arrive in order, tool-call
// fragments carry an index so partial name/argument pieces can be
// reassembled, and exactly one terminal fragment (Done or Err set) closes
// a stream.
//
// # Providers
//
// Two adapters ship with the package: OpenAIProvider, which speaks the
// chat-completions streaming protocol via github.com/sashabaranov/go-openai,
// and GollmProvider, which wraps github.com/teilomillet/gollm for blocking
// completions and synthesizes a single-fragment stream when real streaming
// is unavailable. Tests use in-memory providers; nothing in the runtime
// cares which adapter it is handed.
//
// # Retry
//
// Outbound calls are not retried by adapters themselves. Callers wrap them
// with Retry and a RetryPolicy; only errors classified retryable by
// IsRetryable (rate limits, server errors, transient network failures) are
// retried, with exponential backoff and jitter.
package llmclient
