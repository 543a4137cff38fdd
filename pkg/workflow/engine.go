package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/protocol"
)

// Emitter publishes workflow lifecycle events back through the bus.
type Emitter interface {
	Emit(ctx context.Context, event *models.SystemEvent)
}

// StepRunner routes an action step to its collaborator. Implemented by the
// dispatcher.
type StepRunner interface {
	Dispatch(ctx context.Context, kind string, config map[string]any, actionCtx protocol.ActionContext) (map[string]any, error)
}

// ActionValidator checks action kinds and configurations at template
// registration time. Implemented by the registry.
type ActionValidator interface {
	IsRegistered(kind string) bool
	ValidateConfig(kind string, config map[string]any) error
}

type waitState struct {
	stepID   string
	polling  bool
	resumeAt time.Time
	deadline time.Time
}

// instance wraps one execution with its runtime-only state. Lock ordering:
// inst.mu may be taken while holding nothing, and engine.mu may be taken
// while holding inst.mu, never the reverse.
type instance struct {
	mu            sync.Mutex
	wf            *models.WorkflowExecution
	errorHandling models.ErrorHandling
	compensation  []models.StepTemplate
	attempts      map[string]int
	wait          *waitState
	advancing     bool
	startedAt     time.Time
	pendingEvents []*models.SystemEvent
}

// Engine owns workflow templates and executions. All state is in-memory and
// single-process.
type Engine struct {
	logger   *slog.Logger
	runner   StepRunner
	emitter  Emitter
	actions  ActionValidator
	validate *validator.Validate
	now      func() time.Time

	mu        sync.RWMutex
	templates map[string]*models.WorkflowTemplate
	instances map[string]*instance
	order     []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source, for deterministic wait-step tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(logger *slog.Logger, runner StepRunner, emitter Emitter, actions ActionValidator, opts ...Option) *Engine {
	engine := &Engine{
		logger:    logger.With("module", "workflow"),
		runner:    runner,
		emitter:   emitter,
		actions:   actions,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       func() time.Time { return time.Now().UTC() },
		templates: make(map[string]*models.WorkflowTemplate),
		instances: make(map[string]*instance),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Start instantiates a workflow of the given type from its registered
// template, emits the started event and drives it until the first suspension
// point or a terminal state.
func (e *Engine) Start(ctx context.Context, name, wfType string, trigger models.WorkflowTrigger, contextData map[string]any) (string, error) {
	e.mu.Lock()

	tpl, ok := e.templates[wfType]
	if !ok {
		e.mu.Unlock()

		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, wfType)
	}

	now := e.now()

	steps := make([]*models.WorkflowStep, 0, len(tpl.Steps))
	for _, stepTpl := range tpl.Steps {
		steps = append(steps, models.NewStep(stepTpl))
	}

	if contextData == nil {
		contextData = make(map[string]any)
	}

	correlationID := trigger.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	wf := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		Name:          name,
		Type:          wfType,
		Status:        models.WorkflowStatusPending,
		Trigger:       trigger,
		Steps:         steps,
		Context:       contextData,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	compensation := make([]models.StepTemplate, 0, len(tpl.ErrorHandling.CompensationSteps))

	for _, compID := range tpl.ErrorHandling.CompensationSteps {
		for _, compTpl := range tpl.Compensation {
			if compTpl.ID == compID {
				compensation = append(compensation, compTpl)

				break
			}
		}
	}

	inst := &instance{
		wf:            wf,
		errorHandling: tpl.ErrorHandling,
		compensation:  compensation,
		attempts:      make(map[string]int),
		startedAt:     now,
	}

	e.instances[wf.ID] = inst
	e.order = append(e.order, wf.ID)
	tpl.Metrics.Executions++
	tpl.Metrics.LastExecutedAt = &now

	e.mu.Unlock()

	e.logger.Info("Starting workflow", "workflow_id", wf.ID, "workflow_type", wfType, "workflow_name", name)
	e.emitter.Emit(ctx, lifecycleEvent(ActionStarted, wf, nil))

	e.runLoop(ctx, inst)

	return wf.ID, nil
}

// Advance drives one workflow forward through every currently runnable step.
// Safe to call at any time; a workflow mid-advance or suspended on a wait is
// left alone.
func (e *Engine) Advance(ctx context.Context, workflowID string) error {
	inst, err := e.instance(workflowID)
	if err != nil {
		return err
	}

	e.runLoop(ctx, inst)

	return nil
}

// AdvanceStep externally completes the workflow's current step with the
// given result and resumes execution. This is how collaborators resolve
// steps the engine itself cannot observe.
func (e *Engine) AdvanceStep(ctx context.Context, workflowID, stepID string, result map[string]any) error {
	inst, err := e.instance(workflowID)
	if err != nil {
		return err
	}

	inst.mu.Lock()

	wf := inst.wf

	if wf.Status.Terminal() {
		inst.mu.Unlock()

		return fmt.Errorf("%w: %q", ErrAlreadyTerminal, workflowID)
	}

	step, idx, ok := wf.StepByID(stepID)
	if !ok {
		inst.mu.Unlock()

		return fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}

	if idx != wf.CurrentIndex || step.Status.Terminal() {
		inst.mu.Unlock()

		return fmt.Errorf("%w: %q", ErrStepNotCurrent, stepID)
	}

	// The engine releases the instance lock around action dispatch. A step it
	// is executing right now cannot be resolved externally.
	if inst.advancing {
		inst.mu.Unlock()

		return fmt.Errorf("%w: %q is executing", ErrStepNotCurrent, stepID)
	}

	now := e.now()

	if step.ExecutedAt == nil {
		step.ExecutedAt = &now
	}

	step.Status = models.StepStatusCompleted
	step.Result = result
	wf.CurrentIndex++
	wf.UpdatedAt = now

	if inst.wait != nil && inst.wait.stepID == stepID {
		inst.wait = nil
	}

	inst.pendingEvents = append(inst.pendingEvents, lifecycleEvent(ActionStepCompleted, wf, map[string]any{
		"step_id":   step.ID,
		"step_name": step.Name,
	}))

	inst.mu.Unlock()

	e.runLoop(ctx, inst)

	return nil
}

// Cancel terminates a non-terminal workflow. The cancellation signal is also
// consulted at every step boundary of an advance already in flight.
func (e *Engine) Cancel(ctx context.Context, workflowID, reason string) error {
	inst, err := e.instance(workflowID)
	if err != nil {
		return err
	}

	inst.mu.Lock()

	wf := inst.wf

	if !wf.Status.CanTransitionTo(models.WorkflowStatusCancelled) {
		inst.mu.Unlock()

		return fmt.Errorf("%w: %q", ErrAlreadyTerminal, workflowID)
	}

	now := e.now()
	wf.Status = models.WorkflowStatusCancelled
	wf.UpdatedAt = now
	wf.CompletedAt = &now
	inst.wait = nil

	inst.pendingEvents = append(inst.pendingEvents, lifecycleEvent(ActionCancelled, wf, map[string]any{
		"reason": reason,
	}))

	inst.mu.Unlock()

	e.logger.Info("Cancelled workflow", "workflow_id", workflowID, "reason", reason)
	e.runLoop(ctx, inst)

	return nil
}

// ResumeDue re-drives every non-terminal workflow: due waits resolve, and
// any workflow with a runnable pending step advances. Called by the
// scheduler's workflow tick.
func (e *Engine) ResumeDue(ctx context.Context) {
	e.mu.RLock()

	pending := make([]*instance, 0, len(e.instances))

	for _, id := range e.order {
		inst := e.instances[id]
		if inst != nil {
			pending = append(pending, inst)
		}
	}

	e.mu.RUnlock()

	for _, inst := range pending {
		inst.mu.Lock()
		terminal := inst.wf.Status.Terminal()
		inst.mu.Unlock()

		if !terminal {
			e.runLoop(ctx, inst)
		}
	}
}

// Workflow returns a snapshot of one execution.
func (e *Engine) Workflow(workflowID string) (models.WorkflowExecution, error) {
	inst, err := e.instance(workflowID)
	if err != nil {
		return models.WorkflowExecution{}, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	return snapshot(inst.wf), nil
}

// ActiveWorkflows returns snapshots of every running execution.
func (e *Engine) ActiveWorkflows() []models.WorkflowExecution {
	return e.workflows(func(wf *models.WorkflowExecution) bool {
		return wf.Status == models.WorkflowStatusRunning
	})
}

// Workflows returns snapshots of every execution in creation order.
func (e *Engine) Workflows() []models.WorkflowExecution {
	return e.workflows(func(*models.WorkflowExecution) bool { return true })
}

// CountByStatus aggregates executions per status.
func (e *Engine) CountByStatus() map[models.WorkflowStatus]int {
	counts := make(map[models.WorkflowStatus]int)

	for _, wf := range e.Workflows() {
		counts[wf.Status]++
	}

	return counts
}

func (e *Engine) workflows(keep func(*models.WorkflowExecution) bool) []models.WorkflowExecution {
	e.mu.RLock()

	pending := make([]*instance, 0, len(e.instances))

	for _, id := range e.order {
		if inst := e.instances[id]; inst != nil {
			pending = append(pending, inst)
		}
	}

	e.mu.RUnlock()

	out := make([]models.WorkflowExecution, 0, len(pending))

	for _, inst := range pending {
		inst.mu.Lock()

		if keep(inst.wf) {
			out = append(out, snapshot(inst.wf))
		}

		inst.mu.Unlock()
	}

	return out
}

func (e *Engine) instance(workflowID string) (*instance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inst, ok := e.instances[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrWorkflowNotFound, workflowID)
	}

	return inst, nil
}

func snapshot(wf *models.WorkflowExecution) models.WorkflowExecution {
	out := *wf
	out.Steps = make([]*models.WorkflowStep, len(wf.Steps))

	for i, step := range wf.Steps {
		stepCopy := *step
		out.Steps[i] = &stepCopy
	}

	return out
}
