package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/protocol"
)

// stepBudgetFactor bounds decision loops: a workflow may visit at most this
// many steps per len(Steps) before it is failed.
const stepBudgetFactor = 10

// runLoop drives the instance through every runnable step until it suspends
// on a wait, reaches a terminal status, or exhausts its step budget. Only
// one loop runs per instance at a time; lifecycle events accumulated while
// the lock was held are emitted after release.
func (e *Engine) runLoop(ctx context.Context, inst *instance) {
	inst.mu.Lock()

	if inst.advancing {
		inst.mu.Unlock()

		return
	}

	inst.advancing = true
	budget := stepBudgetFactor * len(inst.wf.Steps)

	for {
		wf := inst.wf

		if wf.Status.Terminal() || ctx.Err() != nil {
			break
		}

		if wf.CurrentIndex >= len(wf.Steps) {
			e.completeLocked(inst)

			break
		}

		step := wf.Steps[wf.CurrentIndex]

		if step.Status.Terminal() {
			wf.CurrentIndex++

			continue
		}

		if budget--; budget < 0 {
			step.Status = models.StepStatusFailed
			step.Error = "step budget exceeded"
			e.failLocked(inst, errors.New("step budget exceeded"))

			break
		}

		if wf.Status == models.WorkflowStatusPending {
			wf.Status = models.WorkflowStatusRunning
			wf.UpdatedAt = e.now()
		}

		var suspend bool

		switch step.Kind {
		case models.StepKindAction:
			e.executeAction(ctx, inst, step)
		case models.StepKindDecision:
			e.executeDecision(inst, step)
		case models.StepKindWait:
			suspend = e.executeWait(ctx, inst, step)
		case models.StepKindParallel:
			e.executeParallel(ctx, inst, step)
		default:
			step.Status = models.StepStatusFailed
			step.Error = fmt.Sprintf("unknown step kind %q", step.Kind)
			e.failLocked(inst, fmt.Errorf("unknown step kind %q", step.Kind))
		}

		if suspend {
			break
		}
	}

	inst.advancing = false
	events := inst.pendingEvents
	inst.pendingEvents = nil

	inst.mu.Unlock()

	for _, event := range events {
		e.emitter.Emit(ctx, event)
	}
}

// executeAction dispatches one action step. The instance lock is released
// around the dispatch so actions may re-enter the engine.
func (e *Engine) executeAction(ctx context.Context, inst *instance, step *models.WorkflowStep) {
	wf := inst.wf
	now := e.now()
	step.Status = models.StepStatusRunning
	step.ExecutedAt = &now
	wf.UpdatedAt = now

	actionCtx := protocol.ActionContext{
		WorkflowID: wf.ID,
		StepID:     step.ID,
		Context:    wf.Context,
	}
	kind := step.Config.ActionKind
	config := step.Config.ActionConfig

	inst.mu.Unlock()
	result, err := e.runner.Dispatch(ctx, kind, config, actionCtx)
	inst.mu.Lock()

	if wf.Status.Terminal() || step.Status.Terminal() {
		// Cancelled or resolved elsewhere while the action was in flight.
		return
	}

	if err == nil {
		step.Status = models.StepStatusCompleted
		step.Result = result
		wf.CurrentIndex++
		wf.UpdatedAt = e.now()

		inst.pendingEvents = append(inst.pendingEvents, lifecycleEvent(ActionStepCompleted, wf, map[string]any{
			"step_id":   step.ID,
			"step_name": step.Name,
		}))

		return
	}

	e.logger.Error("Step action failed", "workflow_id", wf.ID, "step_id", step.ID, "action_kind", kind, "error", err)
	e.handleFailure(ctx, inst, step, err)
}

// executeDecision evaluates the step condition against the workflow context
// and jumps the cursor to the selected branch.
func (e *Engine) executeDecision(inst *instance, step *models.WorkflowStep) {
	wf := inst.wf
	now := e.now()
	step.ExecutedAt = &now

	target := step.Config.OnFalse
	matched := step.Config.Condition.Matches(wf.Context)

	if matched {
		target = step.Config.OnTrue
	}

	_, idx, ok := wf.StepByID(target)
	if !ok {
		step.Status = models.StepStatusFailed
		step.Error = fmt.Sprintf("branch target %q not found", target)
		e.failLocked(inst, fmt.Errorf("branch target %q not found", target))

		return
	}

	step.Status = models.StepStatusCompleted
	step.Result = map[string]any{"matched": matched, "next": target}
	wf.CurrentIndex = idx
	wf.UpdatedAt = now

	inst.pendingEvents = append(inst.pendingEvents, lifecycleEvent(ActionStepCompleted, wf, map[string]any{
		"step_id":   step.ID,
		"step_name": step.Name,
		"next":      target,
	}))
}

// executeWait either installs the wait state and suspends the loop, or
// resolves an already-installed wait that has come due. Returns true when
// the loop must suspend.
func (e *Engine) executeWait(ctx context.Context, inst *instance, step *models.WorkflowStep) bool {
	wf := inst.wf
	now := e.now()

	if inst.wait == nil || inst.wait.stepID != step.ID {
		step.Status = models.StepStatusRunning
		step.ExecutedAt = &now
		wf.UpdatedAt = now

		ws := &waitState{stepID: step.ID}
		ws.resumeAt = now.Add(time.Duration(step.Config.DurationMs) * time.Millisecond)

		if len(step.Config.PollCondition) > 0 {
			ws.polling = true
			ws.deadline = now.Add(time.Duration(step.Config.TimeoutMs) * time.Millisecond)
		}

		inst.wait = ws

		return true
	}

	ws := inst.wait

	if !ws.polling {
		if now.Before(ws.resumeAt) {
			return true
		}

		e.resolveWait(inst, step, map[string]any{"waited_ms": step.Config.DurationMs})

		return false
	}

	if now.After(ws.deadline) {
		inst.wait = nil
		e.handleFailure(ctx, inst, step, fmt.Errorf("wait condition not met within %dms", step.Config.TimeoutMs))

		return false
	}

	if now.Before(ws.resumeAt) {
		return true
	}

	if step.Config.PollCondition.Matches(wf.Context) {
		e.resolveWait(inst, step, map[string]any{"condition_met": true})

		return false
	}

	ws.resumeAt = now.Add(time.Duration(step.Config.PollIntervalMs) * time.Millisecond)

	return true
}

func (e *Engine) resolveWait(inst *instance, step *models.WorkflowStep, result map[string]any) {
	wf := inst.wf
	step.Status = models.StepStatusCompleted
	step.Result = result
	inst.wait = nil
	wf.CurrentIndex++
	wf.UpdatedAt = e.now()

	inst.pendingEvents = append(inst.pendingEvents, lifecycleEvent(ActionStepCompleted, wf, map[string]any{
		"step_id":   step.ID,
		"step_name": step.Name,
	}))
}

// executeParallel dispatches the step's children concurrently and joins on
// all of them. Children already completed by an earlier attempt are not
// re-dispatched.
func (e *Engine) executeParallel(ctx context.Context, inst *instance, step *models.WorkflowStep) {
	wf := inst.wf
	now := e.now()
	step.Status = models.StepStatusRunning
	step.ExecutedAt = &now
	wf.UpdatedAt = now

	type childRun struct {
		step      *models.WorkflowStep
		actionCtx protocol.ActionContext
	}

	runs := make([]childRun, 0, len(step.Config.Children))

	for _, childID := range step.Config.Children {
		child, _, ok := wf.StepByID(childID)
		if !ok || child.Status == models.StepStatusCompleted {
			continue
		}

		childNow := now
		child.Status = models.StepStatusRunning
		child.ExecutedAt = &childNow

		runs = append(runs, childRun{
			step: child,
			actionCtx: protocol.ActionContext{
				WorkflowID: wf.ID,
				StepID:     child.ID,
				Context:    wf.Context,
			},
		})
	}

	type childOutcome struct {
		result map[string]any
		err    error
	}

	outcomes := make([]childOutcome, len(runs))

	inst.mu.Unlock()

	var wg sync.WaitGroup

	for i, run := range runs {
		wg.Add(1)

		go func(i int, run childRun) {
			defer wg.Done()

			result, err := e.runner.Dispatch(ctx, run.step.Config.ActionKind, run.step.Config.ActionConfig, run.actionCtx)
			outcomes[i] = childOutcome{result: result, err: err}
		}(i, run)
	}

	wg.Wait()
	inst.mu.Lock()

	if wf.Status.Terminal() {
		return
	}

	var failed []error

	for i, run := range runs {
		outcome := outcomes[i]

		if outcome.err != nil {
			run.step.Status = models.StepStatusFailed
			run.step.Error = outcome.err.Error()
			failed = append(failed, fmt.Errorf("child %q: %w", run.step.ID, outcome.err))

			continue
		}

		run.step.Status = models.StepStatusCompleted
		run.step.Result = outcome.result
	}

	if len(failed) > 0 {
		e.handleFailure(ctx, inst, step, errors.Join(failed...))

		return
	}

	step.Status = models.StepStatusCompleted
	step.Result = map[string]any{"children": len(step.Config.Children)}
	wf.CurrentIndex++
	wf.UpdatedAt = e.now()

	inst.pendingEvents = append(inst.pendingEvents, lifecycleEvent(ActionStepCompleted, wf, map[string]any{
		"step_id":   step.ID,
		"step_name": step.Name,
	}))
}

// handleFailure applies the template's failure policy to a failed step.
// Called with the instance lock held.
func (e *Engine) handleFailure(ctx context.Context, inst *instance, step *models.WorkflowStep, cause error) {
	wf := inst.wf
	policy := inst.errorHandling.OnFailure

	switch policy {
	case models.FailurePolicyRetry:
		inst.attempts[step.ID]++

		if inst.attempts[step.ID] <= inst.errorHandling.MaxRetries {
			e.logger.Warn("Retrying step",
				"workflow_id", wf.ID, "step_id", step.ID,
				"attempt", inst.attempts[step.ID], "max_retries", inst.errorHandling.MaxRetries)
			step.Status = models.StepStatusPending
			step.Error = cause.Error()
			wf.UpdatedAt = e.now()

			return
		}
	case models.FailurePolicySkip:
		e.logger.Warn("Skipping failed step", "workflow_id", wf.ID, "step_id", step.ID, "error", cause)
		step.Status = models.StepStatusSkipped
		step.Error = cause.Error()
		wf.CurrentIndex++
		wf.UpdatedAt = e.now()

		return
	case models.FailurePolicyCompensate:
		step.Status = models.StepStatusFailed
		step.Error = cause.Error()
		e.runCompensation(ctx, inst)
		e.failLocked(inst, cause)

		return
	}

	// fail_workflow, and retry once attempts are exhausted.
	step.Status = models.StepStatusFailed
	step.Error = cause.Error()
	e.failLocked(inst, cause)
}

// runCompensation executes the template's compensation actions in their
// declared order. Compensation is best effort: a failing compensation action
// is logged and the remainder still runs.
func (e *Engine) runCompensation(ctx context.Context, inst *instance) {
	wf := inst.wf

	for _, compTpl := range inst.compensation {
		actionCtx := protocol.ActionContext{
			WorkflowID: wf.ID,
			StepID:     compTpl.ID,
			Context:    wf.Context,
		}

		inst.mu.Unlock()
		_, err := e.runner.Dispatch(ctx, compTpl.Config.ActionKind, compTpl.Config.ActionConfig, actionCtx)
		inst.mu.Lock()

		if err != nil {
			e.logger.Error("Compensation step failed", "workflow_id", wf.ID, "step_id", compTpl.ID, "error", err)

			continue
		}

		e.logger.Info("Compensation step completed", "workflow_id", wf.ID, "step_id", compTpl.ID)
	}
}

func (e *Engine) completeLocked(inst *instance) {
	wf := inst.wf

	if !wf.Status.CanTransitionTo(models.WorkflowStatusCompleted) {
		return
	}

	now := e.now()
	wf.Status = models.WorkflowStatusCompleted
	wf.UpdatedAt = now
	wf.CompletedAt = &now

	e.recordOutcome(inst, true)

	inst.pendingEvents = append(inst.pendingEvents, lifecycleEvent(ActionCompleted, wf, map[string]any{
		"duration_ms": now.Sub(inst.startedAt).Milliseconds(),
	}))
}

func (e *Engine) failLocked(inst *instance, cause error) {
	wf := inst.wf

	if !wf.Status.CanTransitionTo(models.WorkflowStatusFailed) {
		return
	}

	now := e.now()
	wf.Status = models.WorkflowStatusFailed
	wf.UpdatedAt = now
	wf.CompletedAt = &now

	e.recordOutcome(inst, false)

	inst.pendingEvents = append(inst.pendingEvents, lifecycleEvent(ActionFailed, wf, map[string]any{
		"error": cause.Error(),
	}))
}

// recordOutcome folds one finished execution into the template metrics.
// Takes engine.mu while inst.mu is held, which the lock ordering allows.
func (e *Engine) recordOutcome(inst *instance, success bool) {
	elapsed := e.now().Sub(inst.startedAt)

	e.mu.Lock()
	defer e.mu.Unlock()

	tpl, ok := e.templates[inst.wf.Type]
	if !ok {
		return
	}

	if success {
		tpl.Metrics.Successes++
	} else {
		tpl.Metrics.Failures++
	}

	finished := tpl.Metrics.Successes + tpl.Metrics.Failures
	if finished > 0 {
		total := tpl.Metrics.AvgDurationMs*(finished-1) + elapsed.Milliseconds()
		tpl.Metrics.AvgDurationMs = total / finished
	}
}
