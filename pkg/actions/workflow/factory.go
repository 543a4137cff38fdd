// Package workflow_action provides the action that starts another workflow,
// allowing templates to chain.
package workflow_action

import (
	"context"

	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/protocol"
)

// Starter starts workflows by type. Implemented by the workflow engine.
type Starter interface {
	Start(ctx context.Context, name, wfType string, trigger models.WorkflowTrigger, contextData map[string]any) (string, error)
}

func NewWorkflowActionFactory(starter Starter) *WorkflowActionFactory {
	return &WorkflowActionFactory{starter: starter}
}

type WorkflowActionFactory struct {
	starter Starter
}

func (*WorkflowActionFactory) ID() string {
	return "start_workflow"
}

func (f *WorkflowActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewWorkflowAction(f.starter, config), nil
}

func (f *WorkflowActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workflow_type": map[string]any{
				"type":        "string",
				"description": "Type of the registered template to instantiate.",
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Display name for the new execution. Supports templating.",
			},
			"inherit_context": map[string]any{
				"type":        "boolean",
				"description": "Copy the parent workflow context into the child.",
				"default":     true,
			},
		},
		"required": []string{"workflow_type"},
	}
}
