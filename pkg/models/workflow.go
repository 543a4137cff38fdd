package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow execution.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether the workflow can no longer change state.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// CanTransitionTo enforces monotonic status transitions: pending → running →
// one terminal state. Terminal states never transition again.
func (s WorkflowStatus) CanTransitionTo(next WorkflowStatus) bool {
	switch s {
	case WorkflowStatusPending:
		return next == WorkflowStatusRunning || next == WorkflowStatusCancelled ||
			next == WorkflowStatusFailed || next == WorkflowStatusCompleted
	case WorkflowStatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// WorkflowTrigger records what caused a workflow to start.
type WorkflowTrigger struct {
	Event      string       `json:"event"`
	Conditions ConditionSet `json:"conditions,omitempty"`
	SubjectID  string       `json:"subject_id,omitempty"`
	// CorrelationID carries the triggering event's correlation id so the
	// workflow's own lifecycle events stay in the same causal chain.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// FailurePolicy governs what the engine does when a step fails.
type FailurePolicy string

const (
	FailurePolicyRetry        FailurePolicy = "retry"
	FailurePolicySkip         FailurePolicy = "skip"
	FailurePolicyFailWorkflow FailurePolicy = "fail_workflow"
	FailurePolicyCompensate   FailurePolicy = "compensate"
)

// ErrorHandling is the per-template failure policy configuration.
type ErrorHandling struct {
	OnFailure  FailurePolicy `json:"on_failure"            validate:"required,oneof=retry skip fail_workflow compensate"`
	MaxRetries int           `json:"max_retries,omitempty" validate:"gte=0"`
	// CompensationSteps reference step template ids run in order, before the
	// workflow is marked failed, when OnFailure is "compensate".
	CompensationSteps []string `json:"compensation_steps,omitempty"`
}

// TemplateMetrics aggregates execution outcomes per workflow template.
type TemplateMetrics struct {
	Executions     int64      `json:"executions"`
	Successes      int64      `json:"successes"`
	Failures       int64      `json:"failures"`
	AvgDurationMs  int64      `json:"avg_duration_ms"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
}

// WorkflowTemplate defines the steps instantiated for a workflow type.
type WorkflowTemplate struct {
	Type  string         `json:"type"  validate:"required"`
	Name  string         `json:"name"  validate:"required,min=3"`
	Steps []StepTemplate `json:"steps" validate:"required,min=1,dive"`
	// Compensation holds remediation step definitions referenced by
	// ErrorHandling.CompensationSteps. They never run in the normal flow.
	Compensation  []StepTemplate  `json:"compensation,omitempty" validate:"dive"`
	ErrorHandling ErrorHandling   `json:"error_handling"`
	Metrics       TemplateMetrics `json:"metrics"`
}

// WorkflowExecution is a stateful, ordered execution of typed steps.
type WorkflowExecution struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Status        WorkflowStatus  `json:"status"`
	Trigger       WorkflowTrigger `json:"trigger"`
	Steps         []*WorkflowStep `json:"steps"`
	Context       map[string]any  `json:"context,omitempty"`
	CurrentIndex  int             `json:"current_index"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// StepByID finds a step in the execution's step list.
func (w *WorkflowExecution) StepByID(id string) (*WorkflowStep, int, bool) {
	for i, step := range w.Steps {
		if step.ID == id {
			return step, i, true
		}
	}

	return nil, -1, false
}
