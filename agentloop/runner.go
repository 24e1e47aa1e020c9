package agentloop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/martinemde/conductor/llmclient"
	"github.com/martinemde/conductor/tokens"
	"github.com/martinemde/conductor/toolbox"
)

// Update is one streamed observation from a run: a content fragment, and
// on the terminal update, the outcome.
type Update struct {
	Content   string
	Iteration int
	Done      bool
	Err       error
}

// Flusher persists the conversation when a run completes. Flushing is
// best-effort; failures are logged and never fail the run.
type Flusher interface {
	Flush(ctx context.Context, history []llmclient.Message) error
}

// Config holds per-run loop settings.
type Config struct {
	Model            string
	SystemPrompt     string
	MaxIterations    int // 0 = default 20
	MaxContextTokens int // 0 disables history trimming
	Temperature      *float64
	MaxTokens        int
	Retry            *llmclient.RetryPolicy // nil = DefaultRetryPolicy
	DetectRepeats    bool
	RepeatWindow     int // 0 = default 10
	EventBuffer      int
}

// DefaultMaxIterations bounds a run that never produces a tool-call-free
// response.
const DefaultMaxIterations = 20

const defaultRepeatWindow = 10

// MaxIterationsError is the terminal failure for a run that exhausted its
// iteration budget without a final answer.
type MaxIterationsError struct {
	Iterations int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("run reached the maximum of %d iterations without a final answer", e.Iterations)
}

// Runner drives one conversation between a model provider and a tool
// registry. A Runner serves one run at a time; history accumulates across
// calls so follow-up tasks continue the same conversation.
type Runner struct {
	id       string
	provider llmclient.Provider
	registry *toolbox.Registry
	config   Config
	emitter  *EventEmitter
	log      *slog.Logger
	flusher  Flusher
	budget   tokens.Budget
	history  []llmclient.Message
}

// NewRunner creates a runner. The registry carries the session's confirmer;
// the runner never bypasses it.
func NewRunner(provider llmclient.Provider, registry *toolbox.Registry, config Config) *Runner {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.RepeatWindow <= 0 {
		config.RepeatWindow = defaultRepeatWindow
	}
	runID := uuid.New().String()
	return &Runner{
		id:       runID,
		provider: provider,
		registry: registry,
		config:   config,
		emitter:  NewEventEmitter(runID, config.EventBuffer),
		log:      slog.Default(),
		budget:   tokens.NewBudget(config.MaxContextTokens, nil),
	}
}

// ID returns the run identifier.
func (r *Runner) ID() string { return r.id }

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(log *slog.Logger) {
	if log != nil {
		r.log = log
	}
}

// SetFlusher installs a conversation persister, invoked best-effort when a
// run completes normally.
func (r *Runner) SetFlusher(f Flusher) { r.flusher = f }

// Events returns the event channel for host observability.
func (r *Runner) Events() <-chan Event { return r.emitter.Events() }

// Close releases the event channel. Call once no more runs are needed.
func (r *Runner) Close() { r.emitter.Close() }

// History returns a copy of the conversation history.
func (r *Runner) History() []llmclient.Message {
	h := make([]llmclient.Message, len(r.history))
	copy(h, r.history)
	return h
}

// Run executes the loop for one task and returns the model's final text.
func (r *Runner) Run(ctx context.Context, task string) (string, error) {
	return r.run(ctx, task, nil)
}

// RunStreaming executes the loop for one task, delivering content
// fragments as they arrive. The channel carries exactly one terminal
// update (Done true, Err set on failure) and is then closed. Cancelling
// ctx abandons the run; partially accumulated state is discarded.
func (r *Runner) RunStreaming(ctx context.Context, task string) <-chan Update {
	out := make(chan Update)
	go func() {
		defer close(out)
		emit := func(u Update) {
			select {
			case out <- u:
			case <-ctx.Done():
			}
		}
		if _, err := r.run(ctx, task, emit); err != nil {
			emit(Update{Done: true, Err: err})
		}
	}()
	return out
}

// run is the iteration loop shared by Run and RunStreaming. emit may be
// nil for non-streaming callers.
func (r *Runner) run(ctx context.Context, task string, emit func(Update)) (string, error) {
	if emit == nil {
		emit = func(Update) {}
	}
	retryPolicy := llmclient.DefaultRetryPolicy()
	if r.config.Retry != nil {
		retryPolicy = *r.config.Retry
	}

	r.emitter.Emit(EventRunStart, map[string]any{"task": task})
	r.history = append(r.history, llmclient.UserMessage(task))

	for iteration := 1; iteration <= r.config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r.emitter.Emit(EventIterationStart, map[string]any{"iteration": iteration})

		assistant, err := r.streamOnce(ctx, retryPolicy, iteration, emit)
		if err != nil {
			r.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			return "", err
		}
		r.history = append(r.history, assistant)

		if len(assistant.ToolCalls) == 0 {
			r.flush(ctx)
			emit(Update{Iteration: iteration, Done: true})
			r.emitter.Emit(EventRunEnd, map[string]any{"iterations": iteration})
			return assistant.Content, nil
		}

		r.executeCalls(ctx, assistant.ToolCalls)
		r.warnOnRepeats()
	}

	err := &MaxIterationsError{Iterations: r.config.MaxIterations}
	r.emitter.Emit(EventError, map[string]any{"error": err.Error()})
	return "", err
}

// streamOnce opens one streamed completion and consumes it to the terminal
// chunk, forwarding content fragments in arrival order.
func (r *Runner) streamOnce(ctx context.Context, policy llmclient.RetryPolicy, iteration int, emit func(Update)) (llmclient.Message, error) {
	request := llmclient.Request{
		Model:       r.config.Model,
		Messages:    r.outboundMessages(),
		Tools:       r.registry.Definitions(),
		Temperature: r.config.Temperature,
		MaxTokens:   r.config.MaxTokens,
	}

	// The retry policy covers opening the stream; a stream that fails
	// mid-flight is an execution error, not retried.
	stream, err := llmclient.Retry(ctx, policy, func(ctx context.Context) (<-chan llmclient.StreamChunk, error) {
		return r.provider.Stream(ctx, request)
	})
	if err != nil {
		return llmclient.Message{}, err
	}

	acc := llmclient.NewChunkAccumulator()
	for chunk := range stream {
		if chunk.Err != nil {
			return llmclient.Message{}, chunk.Err
		}
		acc.Add(chunk)
		if chunk.Content != "" {
			emit(Update{Content: chunk.Content, Iteration: iteration})
			r.emitter.Emit(EventContentDelta, map[string]any{"content": chunk.Content})
		}
		if chunk.Done {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return llmclient.Message{}, err
	}
	return acc.Message(), nil
}

// outboundMessages assembles the request message set: the fixed system
// prompt plus the history trimmed to the token budget.
func (r *Runner) outboundMessages() []llmclient.Message {
	trimmed := r.budget.Fit(r.config.SystemPrompt, r.history)
	messages := make([]llmclient.Message, 0, len(trimmed)+1)
	messages = append(messages, llmclient.SystemMessage(r.config.SystemPrompt))
	return append(messages, trimmed...)
}

// executeCalls runs one batch through the registry and appends a tool
// message per result, in call order.
func (r *Runner) executeCalls(ctx context.Context, calls []llmclient.ToolCall) {
	for _, call := range calls {
		r.emitter.Emit(EventToolCallStart, map[string]any{
			"call_id":   call.ID,
			"tool_name": call.Name,
		})
	}

	results := r.registry.ExecuteBatch(ctx, calls)
	for i, res := range results {
		content := res.Error
		if content == "" {
			content = res.Output
		}
		if content == "" {
			content = "(no output)"
		}
		content = TruncateToolOutput(content, calls[i].Name)
		r.history = append(r.history, llmclient.ToolMessage(calls[i].ID, content))

		data := map[string]any{"call_id": calls[i].ID, "success": res.Success}
		if res.Error != "" {
			data["error"] = res.Error
		}
		r.emitter.Emit(EventToolCallEnd, data)
	}
}

// warnOnRepeats injects a steering note when the recent tool calls cycle,
// nudging the model off the repeated pattern.
func (r *Runner) warnOnRepeats() {
	if !r.config.DetectRepeats {
		return
	}
	if !DetectRepeats(r.history, r.config.RepeatWindow) {
		return
	}
	warning := fmt.Sprintf("The last %d tool calls follow a repeating pattern. Try a different approach.", r.config.RepeatWindow)
	r.history = append(r.history, llmclient.UserMessage(warning))
	r.emitter.Emit(EventRepeatWarning, map[string]any{"message": warning})
}

// flush persists the conversation best-effort at run completion.
func (r *Runner) flush(ctx context.Context) {
	if r.flusher == nil {
		return
	}
	if err := r.flusher.Flush(ctx, r.History()); err != nil {
		r.log.Warn("failed to flush conversation", "run_id", r.id, "error", err)
		r.emitter.Emit(EventWarning, map[string]any{
			"message": fmt.Sprintf("conversation flush failed: %v", err),
		})
	}
}
