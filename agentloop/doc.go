// Package agentloop drives the model/tool conversation for one run: it
// streams a completion, assembles any tool calls the model requested,
// executes them through the toolbox registry, feeds results back into the
// history, and repeats until the model answers without tool calls or the
// iteration limit is reached.
//
// The loop owns the conversation history. Outbound messages are one fixed
// system prompt plus the history, trimmed oldest-first to the configured
// token budget. Content fragments are surfaced to the caller as they
// arrive; callers abandon a run by cancelling the context, which discards
// partially accumulated state.
//
// Observability is a buffered event channel that never blocks the loop;
// hosts that fall behind lose events, not progress.
package agentloop
