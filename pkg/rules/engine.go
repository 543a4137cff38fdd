// Package rules implements the declarative rule engine: trigger matching,
// condition evaluation, debounce, cooldown and action dispatch.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/modernmen/pulse/pkg/models"
)

// ActionRunner routes a matched rule action to its collaborator. Implemented
// by the dispatcher.
type ActionRunner interface {
	Run(ctx context.Context, action models.RuleAction, event *models.SystemEvent) (map[string]any, error)
}

// ActionValidator checks action kinds and configurations at registration
// time. Implemented by the registry.
type ActionValidator interface {
	IsRegistered(kind string) bool
	ValidateConfig(kind string, config map[string]any) error
}

type deferredAction struct {
	due    time.Time
	ruleID string
	action models.RuleAction
	event  *models.SystemEvent
}

// Engine holds the rule registry and evaluates every emitted event against
// it. Rules are evaluated in registration order; they are never deleted
// during normal operation, only disabled.
type Engine struct {
	logger   *slog.Logger
	runner   ActionRunner
	actions  ActionValidator
	validate *validator.Validate
	now      func() time.Time

	mu       sync.Mutex
	rules    []*models.OrchestrationRule
	index    map[string]*models.OrchestrationRule
	lastSeen map[string]time.Time
	deferred []deferredAction
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source, for deterministic cooldown tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(logger *slog.Logger, runner ActionRunner, actions ActionValidator, opts ...Option) *Engine {
	engine := &Engine{
		logger:   logger.With("module", "rules"),
		runner:   runner,
		actions:  actions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
		index:    make(map[string]*models.OrchestrationRule),
		lastSeen: make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Register validates and adds a rule. Condition shapes and action
// configurations are checked here so a malformed rule never reaches the
// evaluation path.
func (e *Engine) Register(rule models.OrchestrationRule) error {
	if err := e.validate.Struct(rule); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidRule, rule.ID, err)
	}

	if err := rule.Trigger.Conditions.Validate(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidRule, rule.ID, err)
	}

	for i, action := range rule.Actions {
		if !e.actions.IsRegistered(action.Kind) {
			return fmt.Errorf("%w %q: action %d has unregistered kind %q", ErrInvalidRule, rule.ID, i, action.Kind)
		}

		if err := e.actions.ValidateConfig(action.Kind, action.Config); err != nil {
			return fmt.Errorf("%w %q: action %d: %w", ErrInvalidRule, rule.ID, i, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.index[rule.ID]; exists {
		return fmt.Errorf("%w %q: already registered", ErrInvalidRule, rule.ID)
	}

	stored := rule
	e.rules = append(e.rules, &stored)
	e.index[rule.ID] = &stored

	e.logger.Info("Registered rule", "rule_id", rule.ID, "signature", rule.Trigger.EventSignature)

	return nil
}

// Evaluate runs every enabled rule against the event. Matching is signature
// → debounce → conditions → cooldown; on match, stats are updated and the
// rule's actions dispatched. A failing action never aborts sibling actions
// or other rules.
func (e *Engine) Evaluate(ctx context.Context, event *models.SystemEvent) {
	now := e.now()

	type firing struct {
		rule    *models.OrchestrationRule
		actions []models.RuleAction
	}

	var firings []firing

	e.mu.Lock()

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		if rule.Trigger.EventSignature != event.Signature() {
			continue
		}

		if debounce := rule.Debounce(); debounce > 0 {
			if seen, ok := e.lastSeen[rule.ID]; ok && now.Sub(seen) < debounce {
				continue
			}
		}

		// Every signature match re-arms the debounce window, even when
		// the conditions below reject the event.
		e.lastSeen[rule.ID] = now

		if !rule.Trigger.Conditions.Matches(event.Payload) {
			continue
		}

		if cooldown := rule.Cooldown(); cooldown > 0 && rule.Stats.LastTriggeredAt != nil {
			if now.Sub(*rule.Stats.LastTriggeredAt) < cooldown {
				continue
			}
		}

		triggeredAt := now
		rule.Stats.TriggerCount++
		rule.Stats.LastTriggeredAt = &triggeredAt

		var inline []models.RuleAction

		for _, action := range rule.Actions {
			if action.DelayMs > 0 {
				e.deferred = append(e.deferred, deferredAction{
					due:    now.Add(time.Duration(action.DelayMs) * time.Millisecond),
					ruleID: rule.ID,
					action: action,
					event:  event,
				})

				continue
			}

			inline = append(inline, action)
		}

		if len(inline) > 0 {
			firings = append(firings, firing{rule: rule, actions: inline})
		}
	}

	e.mu.Unlock()

	// Dispatch outside the lock: actions may emit events that re-enter the
	// engine.
	for _, f := range firings {
		for _, action := range f.actions {
			e.runAction(ctx, f.rule.ID, action, event)
		}
	}
}

// DrainDue dispatches deferred actions whose delay has elapsed. Called by
// the scheduler tick.
func (e *Engine) DrainDue(ctx context.Context) int {
	now := e.now()

	e.mu.Lock()

	var due, pending []deferredAction

	for _, d := range e.deferred {
		if d.due.After(now) {
			pending = append(pending, d)
		} else {
			due = append(due, d)
		}
	}

	e.deferred = pending
	e.mu.Unlock()

	for _, d := range due {
		e.runAction(ctx, d.ruleID, d.action, d.event)
	}

	return len(due)
}

func (e *Engine) runAction(ctx context.Context, ruleID string, action models.RuleAction, event *models.SystemEvent) {
	_, err := e.runner.Run(ctx, action, event)

	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.index[ruleID]
	if !ok {
		return
	}

	if err != nil {
		rule.Stats.FailureCount++
		e.logger.Error("Rule action failed",
			"rule_id", ruleID,
			"action_kind", action.Kind,
			"event_id", event.ID,
			"error", err)

		return
	}

	rule.Stats.SuccessCount++
}

// Rules returns snapshots of all registered rules in registration order.
func (e *Engine) Rules() []models.OrchestrationRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.OrchestrationRule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, *rule)
	}

	return out
}

// Rule returns a snapshot of one rule.
func (e *Engine) Rule(id string) (models.OrchestrationRule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.index[id]
	if !ok {
		return models.OrchestrationRule{}, false
	}

	return *rule, true
}

// SetEnabled flips a rule on or off. Disabling is the only way a rule leaves
// rotation.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}

	rule.Enabled = enabled

	return nil
}

// PendingDeferred reports how many delayed actions are queued.
func (e *Engine) PendingDeferred() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.deferred)
}
