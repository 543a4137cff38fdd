package workflow_action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/template"
)

type WorkflowAction struct {
	starter        Starter
	WorkflowType   string
	Name           string
	InheritContext bool
}

func NewWorkflowAction(starter Starter, config map[string]any) *WorkflowAction {
	workflowType, _ := config["workflow_type"].(string)
	name, _ := config["name"].(string)

	inherit := true
	if v, ok := config["inherit_context"].(bool); ok {
		inherit = v
	}

	return &WorkflowAction{
		starter:        starter,
		WorkflowType:   workflowType,
		Name:           name,
		InheritContext: inherit,
	}
}

func (a *WorkflowAction) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "start_workflow")

	if a.WorkflowType == "" {
		return nil, fmt.Errorf("start_workflow has no workflow type")
	}

	name, err := template.RenderWithContext(a.Name, actionCtx)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = a.WorkflowType
	}

	var childContext map[string]any

	if a.InheritContext {
		// Workflow steps pass their context down; rule actions have no
		// workflow context, so the event payload seeds the child instead.
		source := actionCtx.Context
		if source == nil && actionCtx.Event != nil {
			source = actionCtx.Event.Payload
		}

		if source != nil {
			childContext = make(map[string]any, len(source))

			for k, v := range source {
				childContext[k] = v
			}
		}
	}

	trigger := models.WorkflowTrigger{}

	if actionCtx.Event != nil {
		trigger.Event = actionCtx.Event.Signature()
		trigger.SubjectID = actionCtx.Event.SubjectID
		trigger.CorrelationID = actionCtx.Event.CorrelationID
	}

	childID, err := a.starter.Start(ctx, name, a.WorkflowType, trigger, childContext)
	if err != nil {
		return nil, fmt.Errorf("start child workflow %q: %w", a.WorkflowType, err)
	}

	logger.Info("Started child workflow", "child_workflow_id", childID, "workflow_type", a.WorkflowType)

	return map[string]any{
		"child_workflow_id": childID,
		"workflow_type":     a.WorkflowType,
	}, nil
}
