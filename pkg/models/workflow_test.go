package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemEvent_Signature(t *testing.T) {
	event := &SystemEvent{Type: EventTypeBusiness, Category: "booking", Action: "created"}
	assert.Equal(t, "business.booking.created", event.Signature())
}

func TestNewSystemEvent(t *testing.T) {
	event := NewSystemEvent(EventTypeUser, "registration", "completed", map[string]any{"plan": "basic"})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, event.ID, event.CorrelationID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "user.registration.completed", event.Signature())
}

func TestWorkflowStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from WorkflowStatus
		to   WorkflowStatus
		want bool
	}{
		{WorkflowStatusPending, WorkflowStatusRunning, true},
		{WorkflowStatusPending, WorkflowStatusCancelled, true},
		{WorkflowStatusRunning, WorkflowStatusCompleted, true},
		{WorkflowStatusRunning, WorkflowStatusFailed, true},
		{WorkflowStatusRunning, WorkflowStatusCancelled, true},
		{WorkflowStatusCompleted, WorkflowStatusRunning, false},
		{WorkflowStatusFailed, WorkflowStatusRunning, false},
		{WorkflowStatusCancelled, WorkflowStatusPending, false},
		{WorkflowStatusRunning, WorkflowStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStepStatus_Terminal(t *testing.T) {
	assert.True(t, StepStatusCompleted.Terminal())
	assert.True(t, StepStatusFailed.Terminal())
	assert.True(t, StepStatusSkipped.Terminal())
	assert.False(t, StepStatusPending.Terminal())
	assert.False(t, StepStatusRunning.Terminal())
}

func TestNewStep(t *testing.T) {
	tpl := StepTemplate{
		ID:   "greet",
		Name: "Send greeting",
		Kind: StepKindAction,
		Config: StepConfig{
			ActionKind:   "send_email",
			ActionConfig: map[string]any{"template": "welcome"},
		},
	}

	step := NewStep(tpl)

	assert.Equal(t, StepStatusPending, step.Status)
	assert.Equal(t, tpl.ID, step.ID)
	assert.Equal(t, "send_email", step.Config.ActionKind)
	assert.Nil(t, step.ExecutedAt)
}

func TestWorkflowExecution_StepByID(t *testing.T) {
	wf := &WorkflowExecution{
		Steps: []*WorkflowStep{
			{ID: "a"}, {ID: "b"}, {ID: "c"},
		},
	}

	step, idx, ok := wf.StepByID("b")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", step.ID)

	_, _, ok = wf.StepByID("missing")
	assert.False(t, ok)
}
