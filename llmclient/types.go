package llmclient

import (
	"encoding/json"
	"fmt"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation. The history owned by a runner is
// append-only; tool messages reference the call they answer via ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message carrying optional tool calls.
func AssistantMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolMessage creates a tool-result Message answering the given call.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToolCall is a model-initiated tool invocation. Arguments holds the parsed
// form; RawArguments preserves the exact text the model streamed, which is
// what gets echoed back to the provider on the next request.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	RawArguments string         `json:"raw_arguments,omitempty"`
}

// ParseArguments decodes RawArguments into the Arguments map.
func (tc *ToolCall) ParseArguments() error {
	if tc.RawArguments == "" {
		tc.Arguments = map[string]any{}
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.RawArguments), &args); err != nil {
		return fmt.Errorf("tool call %s: invalid arguments: %w", tc.Name, err)
	}
	tc.Arguments = args
	return nil
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the input to Complete and Stream.
type Request struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// Usage tracks token consumption reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the output of Complete.
type Response struct {
	ID        string     `json:"id"`
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// ToolCallDelta is one indexed piece of a tool call inside a stream. The
// Index groups pieces belonging to the same call; ID, Name, and Arguments
// arrive as partial strings to be concatenated in arrival order.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamChunk is a single fragment of a streamed completion. A stream ends
// with exactly one terminal chunk: Done set on normal completion, or Err set
// when the stream failed mid-flight. The channel is closed after the
// terminal chunk.
type StreamChunk struct {
	Content        string          `json:"content,omitempty"`
	ToolCallDeltas []ToolCallDelta `json:"tool_call_deltas,omitempty"`
	Done           bool            `json:"done,omitempty"`
	Usage          *Usage          `json:"usage,omitempty"`
	Err            error           `json:"-"`
}
