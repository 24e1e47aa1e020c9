package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmProvider wraps a gollm.LLM instance. gollm exposes a prompt-oriented
// API without native tool-call streaming, so tool calls are recovered from
// JSON embedded in the generated text and streamed responses surface them
// in the fragment preceding the terminal one.
type GollmProvider struct {
	llm      gollm.LLM
	provider string
	model    string
}

// NewGollmProvider creates a provider for the named upstream ("openai",
// "anthropic", ...). An empty apiKey defers to gollm's environment lookup.
func NewGollmProvider(provider, apiKey, model string) (*GollmProvider, error) {
	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxRetries(0), // retries are layered by the caller
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(apiKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for %s: %w", provider, err)
	}
	return &GollmProvider{llm: llm, provider: provider, model: model}, nil
}

func (p *GollmProvider) ID() string { return "gollm/" + p.provider }

// Complete sends a blocking request.
func (p *GollmProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := p.buildPrompt(req)
	p.applyOptions(req)

	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}
	return p.buildResponse(req, text), nil
}

// Stream streams text deltas when the underlying model supports it and
// falls back to a single-fragment stream otherwise. Tool calls, recovered
// from the full text, are emitted as one delta set before the terminal
// chunk.
func (p *GollmProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	prompt := p.buildPrompt(req)
	p.applyOptions(req)

	ch := make(chan StreamChunk, 64)

	if !p.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			text, err := p.llm.Generate(ctx, prompt)
			if err != nil {
				ch <- StreamChunk{Err: p.translateError(err)}
				return
			}
			p.emitFromText(ch, text)
		}()
		return ch, nil
	}

	stream, err := p.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		var full strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamChunk{Err: &StreamError{ClientError: ClientError{Message: "stream receive failed", Cause: p.translateError(err)}}}
				return
			}
			if token == nil {
				continue
			}
			full.WriteString(token.Text)
			ch <- StreamChunk{Content: token.Text}
		}

		// Tool calls only become visible once the full text is assembled.
		if calls := p.parseToolCalls(full.String()); len(calls) > 0 {
			ch <- StreamChunk{ToolCallDeltas: calls}
		}
		ch <- StreamChunk{Done: true}
	}()

	return ch, nil
}

// emitFromText converts a complete generation into stream fragments.
func (p *GollmProvider) emitFromText(ch chan<- StreamChunk, text string) {
	calls := p.parseToolCalls(text)
	ch <- StreamChunk{Content: p.stripToolCallJSON(text, calls)}
	if len(calls) > 0 {
		ch <- StreamChunk{ToolCallDeltas: calls}
	}
	ch <- StreamChunk{Done: true}
}

func (p *GollmProvider) buildPrompt(req Request) *gollm.Prompt {
	var system strings.Builder
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system.WriteString(msg.Content)
			system.WriteString("\n")
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
		case RoleTool:
			parts = append(parts, "[Tool Result]: "+msg.Content)
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var opts []gollm.PromptOption
	if s := strings.TrimSpace(system.String()); s != "" {
		opts = append(opts, gollm.WithSystemPrompt(s, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, gollm.WithMaxLength(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		opts = append(opts, gollm.WithTools(tools))
		opts = append(opts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, opts...)
}

func (p *GollmProvider) applyOptions(req Request) {
	if req.Model != "" {
		p.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		p.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens > 0 {
		p.llm.SetOption("max_tokens", req.MaxTokens)
	}
}

func (p *GollmProvider) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = p.model
	}

	resp := &Response{
		ID:      "resp_" + uuid.New().String()[:8],
		Model:   model,
		Content: text,
		Usage: Usage{
			// gollm does not expose usage; approximate at 4 chars/token.
			OutputTokens: len(text) / 4,
		},
	}

	if deltas := p.parseToolCalls(text); len(deltas) > 0 {
		resp.Content = p.stripToolCallJSON(text, deltas)
		for _, d := range deltas {
			tc := ToolCall{ID: d.ID, Name: d.Name, RawArguments: d.Arguments}
			_ = tc.ParseArguments()
			resp.ToolCalls = append(resp.ToolCalls, tc)
		}
	}
	return resp
}

// parseToolCalls extracts tool calls gollm returns embedded in text, in the
// common pattern [{"name": ..., "arguments": {...}}].
func (p *GollmProvider) parseToolCalls(text string) []ToolCallDelta {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var raw []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &raw); err != nil {
		return nil
	}

	deltas := make([]ToolCallDelta, 0, len(raw))
	for i, rc := range raw {
		deltas = append(deltas, ToolCallDelta{
			Index:     i,
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: string(rc.Arguments),
		})
	}
	return deltas
}

func (p *GollmProvider) stripToolCallJSON(text string, calls []ToolCallDelta) string {
	if len(calls) == 0 {
		return text
	}
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// translateError classifies gollm errors by message content, since gollm
// does not surface status codes directly.
func (p *GollmProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	base := ClientError{Message: msg, Cause: err}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &AuthenticationError{ProviderError: ProviderError{ClientError: base, Provider: p.provider, StatusCode: 401}}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &RateLimitError{ProviderError: ProviderError{ClientError: base, Provider: p.provider, StatusCode: 429, Retryable: true}}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{ProviderError: ProviderError{ClientError: base, Provider: p.provider, StatusCode: 413}}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		return &ServerError{ProviderError: ProviderError{ClientError: base, Provider: p.provider, StatusCode: 500, Retryable: true}}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{ClientError: base}
	default:
		return &NetworkError{ClientError: base}
	}
}
