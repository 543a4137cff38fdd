package models

import "time"

// RuleTrigger describes which events a rule reacts to.
type RuleTrigger struct {
	// EventSignature is matched against SystemEvent.Signature(),
	// i.e. "{type}.{category}.{action}".
	EventSignature string       `json:"event_signature" validate:"required"`
	Conditions     ConditionSet `json:"conditions,omitempty"`
	// DebounceMs is the minimum elapsed time between two qualifying events
	// before the rule considers the second one.
	DebounceMs int64 `json:"debounce_ms,omitempty" validate:"gte=0"`
}

// RuleAction is one action dispatched when a rule fires. Actions with a
// positive DelayMs are queued and drained by the scheduler instead of running
// inline on the emit path.
type RuleAction struct {
	Kind     string         `json:"kind"               validate:"required"`
	Config   map[string]any `json:"config,omitempty"`
	DelayMs  int64          `json:"delay_ms,omitempty" validate:"gte=0"`
	Priority Priority       `json:"priority,omitempty"`
}

// RuleStats is the only part of a rule mutated after registration.
type RuleStats struct {
	TriggerCount    int64      `json:"trigger_count"`
	SuccessCount    int64      `json:"success_count"`
	FailureCount    int64      `json:"failure_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

// OrchestrationRule is a declarative trigger-to-actions mapping evaluated
// against every emitted event.
type OrchestrationRule struct {
	ID      string       `json:"id"      validate:"required"`
	Name    string       `json:"name"    validate:"required,min=3"`
	Trigger RuleTrigger  `json:"trigger"`
	Actions []RuleAction `json:"actions" validate:"required,min=1,dive"`
	// CooldownMs is the minimum elapsed time between two firings of this
	// rule. Enforced on every evaluation.
	CooldownMs int64     `json:"cooldown_ms" validate:"gte=0"`
	Enabled    bool      `json:"enabled"`
	Stats      RuleStats `json:"stats"`
}

// Cooldown returns the cooldown as a duration.
func (r *OrchestrationRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMs) * time.Millisecond
}

// Debounce returns the trigger debounce as a duration.
func (r *OrchestrationRule) Debounce() time.Duration {
	return time.Duration(r.Trigger.DebounceMs) * time.Millisecond
}
