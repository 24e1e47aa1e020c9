package toolbox

import "fmt"

// DangerPredicate decides at call time whether a tool invocation needs
// confirmation. It returns the confirmation label and whether the call is
// dangerous; an empty label with dangerous=true falls back to the default
// "Execute {name}" label.
type DangerPredicate func(args map[string]any) (label string, dangerous bool)

type dangerKind int

const (
	dangerNone dangerKind = iota
	dangerAlways
	dangerPredicate
)

// Danger is a tagged description of a tool's confirmation requirement:
// never dangerous, always dangerous with a fixed label, or decided per-call
// by a predicate over the arguments.
type Danger struct {
	kind  dangerKind
	label string
	pred  DangerPredicate
}

// DangerNone marks a tool as never requiring confirmation.
func DangerNone() Danger {
	return Danger{kind: dangerNone}
}

// DangerAlways marks a tool as always requiring confirmation. An empty
// label uses the default "Execute {name}" form.
func DangerAlways(label string) Danger {
	return Danger{kind: dangerAlways, label: label}
}

// DangerWhen marks a tool as conditionally dangerous, evaluated per call.
func DangerWhen(pred DangerPredicate) Danger {
	return Danger{kind: dangerPredicate, pred: pred}
}

// Evaluate resolves the tag against a concrete call. name is the tool name
// used for the default label.
func (d Danger) Evaluate(name string, args map[string]any) (label string, dangerous bool) {
	switch d.kind {
	case dangerAlways:
		if d.label != "" {
			return d.label, true
		}
		return fmt.Sprintf("Execute %s", name), true
	case dangerPredicate:
		if d.pred == nil {
			return "", false
		}
		label, dangerous = d.pred(args)
		if dangerous && label == "" {
			label = fmt.Sprintf("Execute %s", name)
		}
		return label, dangerous
	default:
		return "", false
	}
}
