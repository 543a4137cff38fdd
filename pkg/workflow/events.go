package workflow

import (
	"github.com/modernmen/pulse/pkg/models"
)

// Lifecycle event actions emitted back through the bus. Their signatures are
// "system.workflow.<action>" so rules can react to workflow progress.
const (
	EventCategory = "workflow"

	ActionStarted       = "started"
	ActionStepCompleted = "step_completed"
	ActionCompleted     = "completed"
	ActionFailed        = "failed"
	ActionCancelled     = "cancelled"
)

func lifecycleEvent(action string, wf *models.WorkflowExecution, extra map[string]any) *models.SystemEvent {
	payload := map[string]any{
		"workflow_id":   wf.ID,
		"workflow_name": wf.Name,
		"workflow_type": wf.Type,
	}

	for k, v := range extra {
		payload[k] = v
	}

	event := models.NewSystemEvent(models.EventTypeSystem, EventCategory, action, payload)
	event.Source = "workflow_engine"
	event.SubjectID = wf.Trigger.SubjectID

	if wf.CorrelationID != "" {
		event.CorrelationID = wf.CorrelationID
	}

	return event
}
