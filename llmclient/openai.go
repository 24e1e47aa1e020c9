package llmclient

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider speaks the chat-completions protocol, which is also the
// native shape of this package's stream contract: indexed tool-call deltas
// with partial argument strings, closed by a finish_reason.
type OpenAIProvider struct {
	client *openai.Client
	id     string
}

// OpenAIConfig configures an OpenAIProvider. BaseURL allows pointing at any
// chat-completions-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// NewOpenAIProvider creates a provider backed by the official API or any
// compatible endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		id:     "openai",
	}
}

func (p *OpenAIProvider) ID() string { return p.id }

// Complete sends a blocking chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.convertRequest(req, false))
	if err != nil {
		return nil, p.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{ClientError: ClientError{Message: "response contained no choices"}, Provider: p.id}
	}

	choice := resp.Choices[0]
	out := &Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: choice.Message.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name, RawArguments: tc.Function.Arguments}
		_ = call.ParseArguments()
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

// Stream opens a streaming chat completion and forwards each delta as a
// StreamChunk. The finish_reason delta becomes the single terminal chunk.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.convertRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", p.translateError(err))
	}

	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				// Provider closed without a finish_reason; still terminate.
				ch <- StreamChunk{Done: true}
				return
			}
			if err != nil {
				ch <- StreamChunk{Err: &StreamError{ClientError: ClientError{Message: "stream receive failed", Cause: p.translateError(err)}}}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			choice := resp.Choices[0]
			chunk := StreamChunk{Content: choice.Delta.Content}
			for _, tc := range choice.Delta.ToolCalls {
				if tc.Index == nil {
					continue
				}
				chunk.ToolCallDeltas = append(chunk.ToolCallDeltas, ToolCallDelta{
					Index:     *tc.Index,
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			if chunk.Content != "" || len(chunk.ToolCallDeltas) > 0 {
				ch <- chunk
			}

			if choice.FinishReason != "" {
				ch <- StreamChunk{Done: true}
				return
			}
		}
	}()

	return ch, nil
}

func (p *OpenAIProvider) convertRequest(req Request, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.RawArguments,
				},
			})
		}
		msgs = append(msgs, msg)
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	out := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  msgs,
		Tools:     tools,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	return out
}

func (p *OpenAIProvider) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, p.id, nil)
	}
	return &NetworkError{ClientError: ClientError{Message: "request failed", Cause: err}}
}
