package llmclient

import (
	"sort"
	"strings"
)

// ChunkAccumulator reassembles streamed fragments into an assistant message.
// Tool-call pieces are keyed by their stream index; partial ID, name, and
// argument strings are concatenated in arrival order, so a late piece never
// overwrites an earlier one.
type ChunkAccumulator struct {
	content  strings.Builder
	partials map[int]*partialCall
	usage    *Usage
}

type partialCall struct {
	id   strings.Builder
	name strings.Builder
	args strings.Builder
}

// NewChunkAccumulator creates an empty accumulator.
func NewChunkAccumulator() *ChunkAccumulator {
	return &ChunkAccumulator{partials: make(map[int]*partialCall)}
}

// Add ingests one fragment. Terminal chunks may still carry usage data.
func (a *ChunkAccumulator) Add(chunk StreamChunk) {
	a.content.WriteString(chunk.Content)
	for _, d := range chunk.ToolCallDeltas {
		p, ok := a.partials[d.Index]
		if !ok {
			p = &partialCall{}
			a.partials[d.Index] = p
		}
		p.id.WriteString(d.ID)
		p.name.WriteString(d.Name)
		p.args.WriteString(d.Arguments)
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}
}

// Content returns the accumulated assistant text.
func (a *ChunkAccumulator) Content() string {
	return a.content.String()
}

// Usage returns the usage reported by the terminal chunk, if any.
func (a *ChunkAccumulator) Usage() *Usage {
	return a.usage
}

// ToolCalls assembles the accumulated pieces into complete tool calls,
// ordered by stream index. Arguments that fail to parse as JSON leave the
// call's Arguments nil; the raw text is preserved either way.
func (a *ChunkAccumulator) ToolCalls() []ToolCall {
	if len(a.partials) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.partials))
	for idx := range a.partials {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		p := a.partials[idx]
		tc := ToolCall{
			ID:           p.id.String(),
			Name:         p.name.String(),
			RawArguments: p.args.String(),
		}
		_ = tc.ParseArguments() // nil Arguments on malformed JSON; tool reports the failure
		calls = append(calls, tc)
	}
	return calls
}

// Message returns the assembled assistant message.
func (a *ChunkAccumulator) Message() Message {
	return AssistantMessage(a.Content(), a.ToolCalls())
}
