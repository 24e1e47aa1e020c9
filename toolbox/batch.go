package toolbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/martinemde/conductor/llmclient"
)

// DeclinedError is the message reported for dangerous calls the user did
// not approve.
const DeclinedError = "User declined confirmation"

// ConfirmationItem describes one dangerous call awaiting approval.
type ConfirmationItem struct {
	Tool        string
	Description string
	Args        map[string]any
}

// ConfirmationRequest covers every dangerous call in one batch. Items keep
// batch order so a partial decision's index is unambiguous.
type ConfirmationRequest struct {
	Items []ConfirmationItem
}

type confirmKind int

const (
	confirmDenyAll confirmKind = iota
	confirmApproveAll
	confirmPartial
)

// ConfirmationResult is the user's decision over a ConfirmationRequest:
// approve everything, deny everything, or approve exactly one item.
type ConfirmationResult struct {
	kind  confirmKind
	index int
}

// ApproveAll approves every dangerous call in the batch.
func ApproveAll() ConfirmationResult { return ConfirmationResult{kind: confirmApproveAll} }

// DenyAll declines every dangerous call in the batch.
func DenyAll() ConfirmationResult { return ConfirmationResult{kind: confirmDenyAll} }

// ApproveOne approves only the dangerous call at the given request index.
func ApproveOne(index int) ConfirmationResult {
	return ConfirmationResult{kind: confirmPartial, index: index}
}

// Allows reports whether the decision permits the dangerous call at the
// given request index.
func (c ConfirmationResult) Allows(index int) bool {
	switch c.kind {
	case confirmApproveAll:
		return true
	case confirmPartial:
		return c.index == index
	default:
		return false
	}
}

// Confirmer is the human-facing collaborator for the confirmation
// protocol. Implementations block until the user decides or ctx ends.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) (ConfirmationResult, error)
}

// ExecuteBatch runs a batch of model-issued tool calls under the
// confirmation protocol and returns one result per call, in input order.
//
// Dangerous calls are partitioned out and submitted as a single
// ConfirmationRequest; denied calls fail with DeclinedError without
// executing. Approved and safe calls run concurrently. With no confirmer
// installed every call executes unconditionally.
func (r *Registry) ExecuteBatch(ctx context.Context, calls []llmclient.ToolCall) []ExecutionResult {
	results := make([]ExecutionResult, len(calls))
	args := make([]map[string]any, len(calls))

	// Resolve arguments up front; danger evaluation needs them.
	skip := make([]bool, len(calls))
	for i, call := range calls {
		a, err := callArguments(call)
		if err != nil {
			results[i] = ExecutionResult{Error: fmt.Sprintf("invalid arguments for %q: %v", call.Name, err)}
			skip[i] = true
			continue
		}
		args[i] = a
	}

	decision := ApproveAll()
	if r.confirmer != nil {
		var req ConfirmationRequest
		dangerousAt := make(map[int]int) // call index -> request index
		for i, call := range calls {
			if skip[i] {
				continue
			}
			label, dangerous := r.DangerLevel(call.Name, args[i])
			if !dangerous {
				continue
			}
			dangerousAt[i] = len(req.Items)
			req.Items = append(req.Items, ConfirmationItem{
				Tool:        call.Name,
				Description: label,
				Args:        args[i],
			})
		}

		if len(req.Items) > 0 {
			var err error
			decision, err = r.confirmer.Confirm(ctx, req)
			if err != nil {
				decision = DenyAll()
			}
			for i, reqIdx := range dangerousAt {
				if !decision.Allows(reqIdx) {
					results[i] = ExecutionResult{Error: DeclinedError}
					skip[i] = true
				}
			}
		}
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		if skip[i] {
			continue
		}
		wg.Add(1)
		go func(i int, name string, a map[string]any) {
			defer wg.Done()
			results[i] = r.Execute(ctx, name, a)
		}(i, call.Name, args[i])
	}
	wg.Wait()

	return results
}

// callArguments returns the call's parsed arguments, parsing RawArguments
// when the accumulator left them unparsed.
func callArguments(call llmclient.ToolCall) (map[string]any, error) {
	if call.Arguments != nil {
		return call.Arguments, nil
	}
	if err := call.ParseArguments(); err != nil {
		return nil, err
	}
	return call.Arguments, nil
}
