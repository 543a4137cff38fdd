// Package protocol defines the contracts between the orchestration core and
// the external collaborators invoked by rule and workflow actions.
package protocol

import (
	"context"
	"log/slog"

	"github.com/modernmen/pulse/pkg/models"
)

// ActionContext carries the execution context an action runs in. For rule
// actions only Event is set; for workflow steps the workflow fields are set
// too.
type ActionContext struct {
	WorkflowID string              `json:"workflow_id,omitempty"`
	StepID     string              `json:"step_id,omitempty"`
	Event      *models.SystemEvent `json:"event,omitempty"`
	Context    map[string]any      `json:"context,omitempty"`
}

// Action is a single collaborator call. Implementations must treat the call
// as fire-and-return: no internal retries, retries are a rule/workflow
// concern.
type Action interface {
	Execute(ctx context.Context, actionCtx ActionContext, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory creates Action instances from a configuration map and
// describes the configuration it accepts.
type ActionFactory interface {
	// ID returns the action kind this factory handles, e.g. "send_email".
	ID() string

	// Create builds an action instance for the given configuration.
	Create(config map[string]any) (Action, error)

	// Schema returns the JSON schema the configuration is validated against
	// at registration time.
	Schema() map[string]any
}
