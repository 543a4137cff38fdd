package models

import "time"

// StepKind is the execution semantics of a workflow step.
type StepKind string

const (
	StepKindAction   StepKind = "action"
	StepKindDecision StepKind = "decision"
	StepKindWait     StepKind = "wait"
	StepKindParallel StepKind = "parallel"
)

// StepStatus is the lifecycle state of a single step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Terminal reports whether the step can no longer change state.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// StepConfig carries the kind-specific configuration of a step. Only the
// fields for the step's kind are consulted.
type StepConfig struct {
	// action
	ActionKind   string         `json:"action_kind,omitempty"`
	ActionConfig map[string]any `json:"action_config,omitempty"`

	// decision
	Condition ConditionSet `json:"condition,omitempty"`
	OnTrue    string       `json:"on_true,omitempty"`
	OnFalse   string       `json:"on_false,omitempty"`

	// wait: either a fixed duration or a polled condition against the
	// workflow context. TimeoutMs bounds the poll; a default is applied at
	// registration when absent.
	DurationMs     int64        `json:"duration_ms,omitempty"`
	PollCondition  ConditionSet `json:"poll_condition,omitempty"`
	PollIntervalMs int64        `json:"poll_interval_ms,omitempty"`
	TimeoutMs      int64        `json:"timeout_ms,omitempty"`

	// parallel
	Children []string `json:"children,omitempty"`
}

// StepTemplate is the immutable definition a WorkflowStep is instantiated from.
type StepTemplate struct {
	ID     string     `json:"id"   validate:"required"`
	Name   string     `json:"name" validate:"required"`
	Kind   StepKind   `json:"kind" validate:"required,oneof=action decision wait parallel"`
	Config StepConfig `json:"config"`
}

// WorkflowStep is one unit of workflow execution. Steps are owned exclusively
// by their parent workflow and never reorder once instantiated.
type WorkflowStep struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       StepKind       `json:"kind"`
	Status     StepStatus     `json:"status"`
	Config     StepConfig     `json:"config"`
	ExecutedAt *time.Time     `json:"executed_at,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewStep instantiates a pending step from its template.
func NewStep(tpl StepTemplate) *WorkflowStep {
	return &WorkflowStep{
		ID:     tpl.ID,
		Name:   tpl.Name,
		Kind:   tpl.Kind,
		Status: StepStatusPending,
		Config: tpl.Config,
	}
}
