// Package task provides the internal task creation action.
package task

import (
	"github.com/modernmen/pulse/pkg/protocol"
)

func NewTaskActionFactory() *TaskActionFactory {
	return &TaskActionFactory{}
}

type TaskActionFactory struct{}

func (*TaskActionFactory) ID() string {
	return "create_task"
}

func (f *TaskActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewTaskAction(config), nil
}

func (f *TaskActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Task title. Supports templating.",
			},
			"assignee": map[string]any{
				"type":        "string",
				"description": "Team or user the task is routed to. Supports templating.",
			},
			"priority": map[string]any{
				"type":        "string",
				"description": "Task priority",
				"default":     "normal",
				"enum":        []string{"low", "normal", "high", "urgent"},
			},
			"due_in_hours": map[string]any{
				"type":        "number",
				"description": "Hours from now until the task is due",
				"minimum":     0,
			},
		},
		"required": []string{"title", "assignee"},
	}
}
