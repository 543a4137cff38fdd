// Package dispatcher routes rule and step actions to their external
// collaborators through the action registry.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/registry"
)

// Dispatcher is a pure routing layer: kind and config in, collaborator
// result out. It never retries; retries are a rule/workflow concern.
type Dispatcher struct {
	logger   *slog.Logger
	registry *registry.Registry
}

func New(logger *slog.Logger, reg *registry.Registry) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With("module", "dispatcher"),
		registry: reg,
	}
}

// Dispatch creates the action for the given kind and executes it once.
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, config map[string]any, actionCtx protocol.ActionContext) (map[string]any, error) {
	action, err := d.registry.CreateAction(kind, config)
	if err != nil {
		return nil, fmt.Errorf("create action %q: %w", kind, err)
	}

	logger := d.logger.With("action_kind", kind)
	if actionCtx.WorkflowID != "" {
		logger = logger.With("workflow_id", actionCtx.WorkflowID, "step_id", actionCtx.StepID)
	}

	result, err := action.Execute(ctx, actionCtx, logger)
	if err != nil {
		return nil, fmt.Errorf("execute action %q: %w", kind, err)
	}

	return result, nil
}

// Run implements the rule engine's ActionRunner contract.
func (d *Dispatcher) Run(ctx context.Context, action models.RuleAction, event *models.SystemEvent) (map[string]any, error) {
	return d.Dispatch(ctx, action.Kind, action.Config, protocol.ActionContext{Event: event})
}
