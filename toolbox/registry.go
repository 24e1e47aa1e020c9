package toolbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/martinemde/conductor/llmclient"
)

// Tool pairs a definition with its executor and danger tag. Execute
// receives already-parsed arguments; string output and Go errors are both
// folded into ExecutionResult by the registry.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Danger      Danger
	Execute     func(ctx context.Context, args map[string]any) (string, error)
}

// ExecutionResult is the uniform outcome of one tool call. Exactly one of
// Output and Error is meaningful; Success distinguishes them.
type ExecutionResult struct {
	Success bool
	Output  string
	Error   string
}

// Registry manages tool registration and execution for one session. The
// confirmer is fixed at construction; a nil confirmer means every call is
// approved.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*Tool
	confirmer Confirmer
}

// NewRegistry creates a registry bound to the given confirmer. Pass nil for
// non-interactive sessions.
func NewRegistry(confirmer Confirmer) *Registry {
	return &Registry{
		tools:     make(map[string]*Tool),
		confirmer: confirmer,
	}
}

// Register adds a tool. Name collisions are a hard error so two providers
// cannot silently shadow each other.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %q has no executor", tool.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q is already registered", tool.Name)
	}
	r.tools[tool.Name] = &tool
	return nil
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the tool definitions to send to the model, sorted by
// name for stable request bodies.
func (r *Registry) Definitions() []llmclient.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llmclient.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llmclient.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// IsDangerous evaluates the named tool's danger tag against args. Unknown
// tools are not dangerous; they fail at execution instead.
func (r *Registry) IsDangerous(name string, args map[string]any) bool {
	_, dangerous := r.DangerLevel(name, args)
	return dangerous
}

// DangerLevel returns the confirmation label for the named tool and
// whether the call requires confirmation at all.
func (r *Registry) DangerLevel(name string, args map[string]any) (string, bool) {
	t, ok := r.Get(name)
	if !ok {
		return "", false
	}
	return t.Danger.Evaluate(name, args)
}

// Execute runs one tool by name. It never panics: unknown names, executor
// errors, and executor panics all come back as failed ExecutionResults.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result ExecutionResult) {
	tool, ok := r.Get(name)
	if !ok {
		return ExecutionResult{Error: fmt.Sprintf("Tool %q not found", name)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = ExecutionResult{Error: fmt.Sprintf("tool %q panicked: %v", name, rec)}
		}
	}()

	output, err := tool.Execute(ctx, args)
	if err != nil {
		return ExecutionResult{Error: err.Error()}
	}
	return ExecutionResult{Success: true, Output: output}
}
