// Package toolbox owns the set of tools an agent run may call: registration
// with collision detection, danger tagging, and batch execution under the
// confirmation protocol.
//
// Tools carry a Danger tag describing when they need human approval. Before
// a batch runs, dangerous calls are gathered into a single
// ConfirmationRequest and handed to the session's Confirmer; the decision
// (approve all, deny all, or approve exactly one) controls which dangerous
// calls execute. Safe calls always execute. A registry built with a nil
// Confirmer runs non-interactively and executes everything.
//
// Execute never panics and never returns a Go error: every outcome,
// including executor panics and unknown tool names, is folded into an
// ExecutionResult so the caller can relay it to the model verbatim.
package toolbox
