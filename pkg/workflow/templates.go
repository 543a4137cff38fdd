package workflow

import (
	"fmt"

	"github.com/modernmen/pulse/pkg/models"
)

// Default bounds applied to wait steps at registration so no step can stay
// live indefinitely.
const (
	DefaultWaitTimeoutMs  = int64(10 * 60 * 1000)
	DefaultPollIntervalMs = int64(5 * 1000)
)

// RegisterTemplate validates a template eagerly and stores it. Configuration
// problems (dangling decision targets, unknown or non-action parallel
// children, bad compensation references) are rejected here, never at
// execution time.
func (e *Engine) RegisterTemplate(tpl models.WorkflowTemplate) error {
	if tpl.ErrorHandling.OnFailure == "" {
		tpl.ErrorHandling.OnFailure = models.FailurePolicyFailWorkflow
	}

	if err := e.validate.Struct(tpl); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidTemplate, tpl.Type, err)
	}

	byID := make(map[string]models.StepTemplate, len(tpl.Steps))

	for _, step := range tpl.Steps {
		if _, dup := byID[step.ID]; dup {
			return fmt.Errorf("%w: %q: duplicate step id %q", ErrInvalidTemplate, tpl.Type, step.ID)
		}

		byID[step.ID] = step
	}

	for i := range tpl.Steps {
		if err := e.validateStep(&tpl.Steps[i], byID); err != nil {
			return fmt.Errorf("%w: %q: step %q: %w", ErrInvalidTemplate, tpl.Type, tpl.Steps[i].ID, err)
		}
	}

	compByID := make(map[string]models.StepTemplate, len(tpl.Compensation))

	for _, step := range tpl.Compensation {
		if step.Kind != models.StepKindAction {
			return fmt.Errorf("%w: %q: compensation step %q must be an action step", ErrInvalidTemplate, tpl.Type, step.ID)
		}

		if err := e.validateActionStep(step); err != nil {
			return fmt.Errorf("%w: %q: compensation step %q: %w", ErrInvalidTemplate, tpl.Type, step.ID, err)
		}

		compByID[step.ID] = step
	}

	for _, id := range tpl.ErrorHandling.CompensationSteps {
		if _, ok := compByID[id]; !ok {
			return fmt.Errorf("%w: %q: compensation reference %q has no definition", ErrInvalidTemplate, tpl.Type, id)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.templates[tpl.Type]; exists {
		return fmt.Errorf("%w: %q: type already registered", ErrInvalidTemplate, tpl.Type)
	}

	e.templates[tpl.Type] = &tpl
	e.logger.Info("Registered workflow template", "type", tpl.Type, "steps", len(tpl.Steps))

	return nil
}

func (e *Engine) validateStep(step *models.StepTemplate, byID map[string]models.StepTemplate) error {
	switch step.Kind {
	case models.StepKindAction:
		return e.validateActionStep(*step)

	case models.StepKindDecision:
		if step.Config.OnTrue == "" || step.Config.OnFalse == "" {
			return fmt.Errorf("decision step needs both on_true and on_false targets")
		}

		for _, target := range []string{step.Config.OnTrue, step.Config.OnFalse} {
			if _, ok := byID[target]; !ok {
				return fmt.Errorf("branch target %q not in step list", target)
			}
		}

		return step.Config.Condition.Validate()

	case models.StepKindWait:
		hasDuration := step.Config.DurationMs > 0
		hasPoll := len(step.Config.PollCondition) > 0

		if !hasDuration && !hasPoll {
			return fmt.Errorf("wait step needs a duration or a poll condition")
		}

		if hasPoll {
			if err := step.Config.PollCondition.Validate(); err != nil {
				return err
			}

			if step.Config.PollIntervalMs <= 0 {
				step.Config.PollIntervalMs = DefaultPollIntervalMs
			}

			// Polling must always be bounded.
			if step.Config.TimeoutMs <= 0 {
				step.Config.TimeoutMs = DefaultWaitTimeoutMs
			}
		}

		return nil

	case models.StepKindParallel:
		if len(step.Config.Children) == 0 {
			return fmt.Errorf("parallel step needs at least one child")
		}

		for _, childID := range step.Config.Children {
			child, ok := byID[childID]
			if !ok {
				return fmt.Errorf("child %q not in step list", childID)
			}

			if childID == step.ID {
				return fmt.Errorf("parallel step cannot reference itself")
			}

			if child.Kind != models.StepKindAction {
				return fmt.Errorf("child %q must be an action step", childID)
			}
		}

		return nil

	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func (e *Engine) validateActionStep(step models.StepTemplate) error {
	if step.Config.ActionKind == "" {
		return fmt.Errorf("action step needs an action kind")
	}

	if !e.actions.IsRegistered(step.Config.ActionKind) {
		return fmt.Errorf("action kind %q not registered", step.Config.ActionKind)
	}

	return e.actions.ValidateConfig(step.Config.ActionKind, step.Config.ActionConfig)
}

// Template returns a snapshot of one registered template.
func (e *Engine) Template(wfType string) (models.WorkflowTemplate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tpl, ok := e.templates[wfType]
	if !ok {
		return models.WorkflowTemplate{}, false
	}

	return *tpl, true
}

// Templates returns snapshots of all registered templates.
func (e *Engine) Templates() []models.WorkflowTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.WorkflowTemplate, 0, len(e.templates))
	for _, tpl := range e.templates {
		out = append(out, *tpl)
	}

	return out
}
