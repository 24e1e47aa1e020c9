package agentloop

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/martinemde/conductor/llmclient"
	"github.com/martinemde/conductor/toolbox"
)

// scriptedProvider plays back one chunk script per Stream call. The last
// script repeats when the loop outlives the script.
type scriptedProvider struct {
	scripts  [][]llmclient.StreamChunk
	requests []llmclient.Request
}

func (p *scriptedProvider) ID() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llmclient.Request) (*llmclient.Response, error) {
	return nil, fmt.Errorf("not implemented")
}

func (p *scriptedProvider) Stream(ctx context.Context, req llmclient.Request) (<-chan llmclient.StreamChunk, error) {
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	script := p.scripts[idx]

	ch := make(chan llmclient.StreamChunk, len(script))
	for _, chunk := range script {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func textScript(fragments ...string) []llmclient.StreamChunk {
	var chunks []llmclient.StreamChunk
	for _, f := range fragments {
		chunks = append(chunks, llmclient.StreamChunk{Content: f})
	}
	return append(chunks, llmclient.StreamChunk{Done: true})
}

func toolCallScript(id, name, args string) []llmclient.StreamChunk {
	return []llmclient.StreamChunk{
		{ToolCallDeltas: []llmclient.ToolCallDelta{{Index: 0, ID: id, Name: name, Arguments: args}}},
		{Done: true},
	}
}

func testRegistry(t *testing.T) *toolbox.Registry {
	t.Helper()
	reg := toolbox.NewRegistry(nil)
	err := reg.Register(toolbox.Tool{
		Name:        "note",
		Description: "records a note",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("noted %v", args["text"]), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestRunTerminatesWithoutToolCalls(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		textScript("All ", "done."),
	}}
	runner := NewRunner(provider, testRegistry(t), Config{Model: "test-model"})

	final, err := runner.Run(context.Background(), "say done")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if final != "All done." {
		t.Errorf("final = %q, want %q", final, "All done.")
	}
	if len(provider.requests) != 1 {
		t.Errorf("model called %d times, want 1", len(provider.requests))
	}
}

func TestRunExecutesToolCallsThenFinishes(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		toolCallScript("call_1", "note", `{"text":"hello"}`),
		textScript("Recorded."),
	}}
	runner := NewRunner(provider, testRegistry(t), Config{Model: "test-model"})

	final, err := runner.Run(context.Background(), "take a note")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if final != "Recorded." {
		t.Errorf("final = %q", final)
	}

	history := runner.History()
	// user, assistant(tool call), tool result, assistant(final).
	if len(history) != 4 {
		t.Fatalf("history has %d messages: %+v", len(history), history)
	}
	toolMsg := history[2]
	if toolMsg.Role != llmclient.RoleTool || toolMsg.ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", toolMsg)
	}
	if toolMsg.Content != "noted hello" {
		t.Errorf("tool message content = %q", toolMsg.Content)
	}

	// The second request must include the assistant call and tool result.
	second := provider.requests[1]
	if len(second.Messages) != 4 { // system + user + assistant + tool
		t.Errorf("second request carries %d messages, want 4", len(second.Messages))
	}
}

func TestRunFailsOnIterationExhaustion(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		toolCallScript("call_1", "note", `{"text":"again"}`),
	}}
	runner := NewRunner(provider, testRegistry(t), Config{
		Model:         "test-model",
		MaxIterations: 1,
	})

	_, err := runner.Run(context.Background(), "loop forever")
	var exhausted *MaxIterationsError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want MaxIterationsError", err)
	}
	if exhausted.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", exhausted.Iterations)
	}
}

func TestRunStreamingDeliversFragmentsInOrder(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		textScript("one ", "two ", "three"),
	}}
	runner := NewRunner(provider, testRegistry(t), Config{Model: "test-model"})

	var fragments []string
	var sawDone bool
	for update := range runner.RunStreaming(context.Background(), "count") {
		if update.Err != nil {
			t.Fatalf("unexpected error update: %v", update.Err)
		}
		if update.Done {
			sawDone = true
			continue
		}
		if sawDone {
			t.Error("fragment arrived after the terminal update")
		}
		fragments = append(fragments, update.Content)
	}

	want := []string{"one ", "two ", "three"}
	if len(fragments) != len(want) {
		t.Fatalf("got %d fragments: %v", len(fragments), fragments)
	}
	for i := range want {
		if fragments[i] != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, fragments[i], want[i])
		}
	}
	if !sawDone {
		t.Error("no terminal update received")
	}
}

func TestRunStreamingReportsExhaustionOnTerminalUpdate(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		toolCallScript("call_1", "note", `{}`),
	}}
	runner := NewRunner(provider, testRegistry(t), Config{
		Model:         "test-model",
		MaxIterations: 2,
	})

	var terminal Update
	for update := range runner.RunStreaming(context.Background(), "loop") {
		terminal = update
	}
	if !terminal.Done {
		t.Fatal("stream ended without a terminal update")
	}
	var exhausted *MaxIterationsError
	if !errors.As(terminal.Err, &exhausted) {
		t.Errorf("terminal error = %v, want MaxIterationsError", terminal.Err)
	}
}

func TestRunAppendsPlaceholderForEmptyToolOutput(t *testing.T) {
	reg := toolbox.NewRegistry(nil)
	reg.Register(toolbox.Tool{
		Name: "silent",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	})
	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		toolCallScript("call_1", "silent", `{}`),
		textScript("ok"),
	}}
	runner := NewRunner(provider, reg, Config{Model: "test-model"})

	if _, err := runner.Run(context.Background(), "run silent"); err != nil {
		t.Fatal(err)
	}
	history := runner.History()
	if history[2].Content != "(no output)" {
		t.Errorf("empty tool output recorded as %q", history[2].Content)
	}
}

func TestRunRecordsToolErrorsAsResults(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		toolCallScript("call_1", "vanished", `{}`),
		textScript("ok"),
	}}
	runner := NewRunner(provider, testRegistry(t), Config{Model: "test-model"})

	if _, err := runner.Run(context.Background(), "call a missing tool"); err != nil {
		t.Fatalf("tool failure must not fail the run: %v", err)
	}
	history := runner.History()
	if history[2].Content != `Tool "vanished" not found` {
		t.Errorf("tool error recorded as %q", history[2].Content)
	}
}

type failingFlusher struct{ calls int }

func (f *failingFlusher) Flush(ctx context.Context, history []llmclient.Message) error {
	f.calls++
	return fmt.Errorf("disk unavailable")
}

func TestRunFlushFailureIsNotFatal(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		textScript("done"),
	}}
	runner := NewRunner(provider, testRegistry(t), Config{Model: "test-model"})
	flusher := &failingFlusher{}
	runner.SetFlusher(flusher)

	final, err := runner.Run(context.Background(), "finish")
	if err != nil {
		t.Fatalf("flush failure surfaced as run failure: %v", err)
	}
	if final != "done" {
		t.Errorf("final = %q", final)
	}
	if flusher.calls != 1 {
		t.Errorf("flusher called %d times, want 1", flusher.calls)
	}
}

func TestRunStreamingCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{scripts: [][]llmclient.StreamChunk{
		textScript("never"),
	}}
	runner := NewRunner(provider, testRegistry(t), Config{Model: "test-model"})

	var terminal Update
	for update := range runner.RunStreaming(ctx, "cancelled before start") {
		terminal = update
	}
	// The channel must close promptly; if a terminal update got through, it
	// carries the cancellation.
	if terminal.Done && terminal.Err == nil {
		t.Error("cancelled run reported success")
	}
}
