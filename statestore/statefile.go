package statestore

import (
	"fmt"
	"time"
)

// Phase identifies what kind of work a task attempt performs. It is fixed
// for the lifetime of one run.
type Phase string

const (
	PhasePlan    Phase = "plan"
	PhaseBuild   Phase = "build"
	PhaseExplore Phase = "explore"
)

// Status tracks a task attempt's lifecycle. Legal transitions are
// pending -> in_progress -> completed or failed; nothing else.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Metadata identifies the agent invocation that owns a state file.
type Metadata struct {
	AgentName           string            `json:"agent_name"`
	AgentVersion        string            `json:"agent_version"`
	InvocationTimestamp time.Time         `json:"invocation_timestamp"`
	Parameters          map[string]string `json:"parameters,omitempty"`
}

// Results holds per-phase outputs. Only the field matching the file's
// phase is expected to be populated.
type Results struct {
	Plan        string `json:"plan,omitempty"`
	Build       string `json:"build,omitempty"`
	Exploration string `json:"exploration,omitempty"`
}

// StateError records one failure encountered during the run.
type StateError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Fatal     bool      `json:"fatal,omitempty"`
}

// Artifact references a file the run produced.
type Artifact struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// StateFile is the durable record of one task attempt, identified by the
// file path it is stored at.
type StateFile struct {
	Metadata        Metadata     `json:"metadata"`
	Phase           Phase        `json:"phase"`
	TaskDescription string       `json:"task_description"`
	Status          Status       `json:"status"`
	Results         Results      `json:"results"`
	Errors          []StateError `json:"errors,omitempty"`
	Artifacts       []Artifact   `json:"artifacts,omitempty"`
}

// Validate checks the schema constraints that JSON decoding alone cannot:
// known phase and status values and non-empty identifying metadata.
func (s *StateFile) Validate() error {
	switch s.Phase {
	case PhasePlan, PhaseBuild, PhaseExplore:
	default:
		return fmt.Errorf("unknown phase %q", s.Phase)
	}
	switch s.Status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if s.Metadata.AgentName == "" {
		return fmt.Errorf("metadata.agent_name is required")
	}
	return nil
}
