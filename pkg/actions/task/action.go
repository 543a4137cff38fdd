package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/template"
)

type TaskAction struct {
	Title      string
	Assignee   string
	Priority   string
	DueInHours float64
}

func NewTaskAction(config map[string]any) *TaskAction {
	title, _ := config["title"].(string)
	assignee, _ := config["assignee"].(string)

	priority, _ := config["priority"].(string)
	if priority == "" {
		priority = "normal"
	}

	dueInHours, _ := config["due_in_hours"].(float64)

	return &TaskAction{
		Title:      title,
		Assignee:   assignee,
		Priority:   priority,
		DueInHours: dueInHours,
	}
}

func (a *TaskAction) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "create_task")

	title, err := template.RenderWithContext(a.Title, actionCtx)
	if err != nil {
		return nil, err
	}

	if title == "" {
		return nil, fmt.Errorf("task has no title")
	}

	assignee, err := template.RenderWithContext(a.Assignee, actionCtx)
	if err != nil {
		return nil, err
	}

	taskID := uuid.New().String()

	result := map[string]any{
		"task_id":    taskID,
		"title":      title,
		"assignee":   assignee,
		"priority":   a.Priority,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}

	if a.DueInHours > 0 {
		dueAt := time.Now().UTC().Add(time.Duration(a.DueInHours * float64(time.Hour)))
		result["due_at"] = dueAt.Format(time.RFC3339)
	}

	logger.Info("Created task", "task_id", taskID, "assignee", assignee, "priority", a.Priority)

	return result, nil
}
