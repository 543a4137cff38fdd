package orchestrator

import (
	"fmt"

	"github.com/modernmen/pulse/pkg/models"
)

// CoreRules returns the rules every deployment starts with: welcome flow on
// registration, booking confirmation, and churn prevention for customers
// gone quiet.
func CoreRules() []models.OrchestrationRule {
	return []models.OrchestrationRule{
		{
			ID:   "user_registration_welcome",
			Name: "Welcome new users",
			Trigger: models.RuleTrigger{
				EventSignature: "user.registration.completed",
			},
			Actions: []models.RuleAction{
				{
					Kind: "start_workflow",
					Config: map[string]any{
						"workflow_type": "onboarding",
						"name":          "Onboard {{.event.payload.name}}",
					},
				},
			},
			Enabled: true,
		},
		{
			ID:   "booking_confirmation",
			Name: "Confirm new bookings",
			Trigger: models.RuleTrigger{
				EventSignature: "business.booking.created",
			},
			Actions: []models.RuleAction{
				{
					Kind: "send_email",
					Config: map[string]any{
						"to":      "{{.event.payload.email}}",
						"subject": "Your booking is confirmed",
						"body":    "See you on {{.event.payload.date}} for {{.event.payload.service}}.",
					},
				},
				{
					Kind: "send_sms",
					Config: map[string]any{
						"to":      "{{.event.payload.phone}}",
						"message": "Reminder: {{.event.payload.service}} on {{.event.payload.date}}",
					},
					// Reminder goes out later, not on the emit path.
					DelayMs: 60 * 60 * 1000,
				},
			},
			Enabled: true,
		},
		{
			ID:   "churn_prevention",
			Name: "Re-engage inactive customers",
			Trigger: models.RuleTrigger{
				EventSignature: "user.engagement.declined",
				Conditions: models.ConditionSet{
					"days_since_last_visit": map[string]any{"$gt": 30},
				},
				DebounceMs: 24 * 60 * 60 * 1000,
			},
			Actions: []models.RuleAction{
				{
					Kind: "start_workflow",
					Config: map[string]any{
						"workflow_type": "retention",
						"name":          "Retain {{.event.payload.user_id}}",
					},
				},
			},
			CooldownMs: 7 * 24 * 60 * 60 * 1000,
			Enabled:    true,
		},
	}
}

// DefaultTemplates returns the workflow templates the core rules reference.
func DefaultTemplates() []models.WorkflowTemplate {
	return []models.WorkflowTemplate{
		{
			Type: "onboarding",
			Name: "New user onboarding",
			Steps: []models.StepTemplate{
				{
					ID:   "welcome_notification",
					Name: "Welcome notification",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "send_notification",
						ActionConfig: map[string]any{
							"recipient": "{{.context.user_id}}",
							"title":     "Welcome!",
							"message":   "Thanks for signing up.",
						},
					},
				},
				{
					ID:   "mark_onboarding",
					Name: "Mark onboarding started",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "update_user",
						ActionConfig: map[string]any{
							"user_id": "{{.context.user_id}}",
							"fields":  map[string]any{"onboarding_started": true},
						},
					},
				},
				{
					ID:   "settle_in",
					Name: "Give the user a day to settle in",
					Kind: models.StepKindWait,
					Config: models.StepConfig{
						DurationMs: 24 * 60 * 60 * 1000,
					},
				},
				{
					ID:   "follow_up_task",
					Name: "Follow-up check-in task",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "create_task",
						ActionConfig: map[string]any{
							"title":        "Check in with {{.context.user_id}}",
							"assignee":     "customer-success",
							"priority":     "normal",
							"due_in_hours": float64(48),
						},
					},
				},
			},
			// Skip keeps onboarding moving even when the registration
			// payload is missing optional fields a step needs.
			ErrorHandling: models.ErrorHandling{
				OnFailure: models.FailurePolicySkip,
			},
		},
		{
			Type: "booking",
			Name: "Booking fulfillment",
			Steps: []models.StepTemplate{
				{
					ID:   "reserve_slot",
					Name: "Reserve the slot",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "schedule_appointment",
						ActionConfig: map[string]any{
							"customer_id":  "{{.context.customer_id}}",
							"service":      "{{.context.service}}",
							"offset_hours": float64(24),
						},
					},
				},
				{
					ID:   "notify_customer",
					Name: "Notify on every channel",
					Kind: models.StepKindParallel,
					Config: models.StepConfig{
						Children: []string{"booking_email", "booking_sms"},
					},
				},
				{
					ID:   "booking_email",
					Name: "Booking email",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "send_email",
						ActionConfig: map[string]any{
							"to":      "{{.context.email}}",
							"subject": "Booking confirmed",
							"body":    "Your {{.context.service}} booking is confirmed.",
						},
					},
				},
				{
					ID:   "booking_sms",
					Name: "Booking sms",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "send_sms",
						ActionConfig: map[string]any{
							"to":      "{{.context.phone}}",
							"message": "Booking confirmed: {{.context.service}}",
						},
					},
				},
			},
			ErrorHandling: models.ErrorHandling{
				OnFailure:         models.FailurePolicyCompensate,
				CompensationSteps: []string{"release_slot"},
			},
			Compensation: []models.StepTemplate{
				{
					ID:   "release_slot",
					Name: "Release the reserved slot",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "create_task",
						ActionConfig: map[string]any{
							"title":    "Release reserved slot for {{.context.customer_id}}",
							"assignee": "front-desk",
							"priority": "high",
						},
					},
				},
			},
		},
		{
			Type: "retention",
			Name: "Customer retention",
			Steps: []models.StepTemplate{
				{
					ID:   "flag_at_risk",
					Name: "Flag the account as at risk",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "update_user",
						ActionConfig: map[string]any{
							"user_id": "{{.context.user_id}}",
							"fields":  map[string]any{"at_risk": true},
						},
					},
				},
				{
					ID:   "check_high_value",
					Name: "Escalate high-value customers",
					Kind: models.StepKindDecision,
					Config: models.StepConfig{
						Condition: models.ConditionSet{
							"lifetime_value": map[string]any{"$gt": 500},
						},
						OnTrue:  "personal_outreach",
						OnFalse: "winback_email",
					},
				},
				{
					ID:   "personal_outreach",
					Name: "Personal outreach task",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "create_task",
						ActionConfig: map[string]any{
							"title":        "Call {{.context.user_id}} personally",
							"assignee":     "customer-success",
							"priority":     "high",
							"due_in_hours": float64(24),
						},
					},
				},
				{
					ID:   "winback_email",
					Name: "Win-back email",
					Kind: models.StepKindAction,
					Config: models.StepConfig{
						ActionKind: "send_email",
						ActionConfig: map[string]any{
							"to":      "{{.context.email}}",
							"subject": "We miss you",
							"body":    "Here is 20% off your next visit.",
						},
					},
				},
			},
			ErrorHandling: models.ErrorHandling{
				OnFailure: models.FailurePolicySkip,
			},
		},
	}
}

// RegisterDefaults installs the default templates and core rules. Templates
// go first so rule registration can validate the start_workflow configs
// against registered action kinds.
func (o *Orchestrator) RegisterDefaults() error {
	for _, tpl := range DefaultTemplates() {
		if err := o.RegisterTemplate(tpl); err != nil {
			return fmt.Errorf("register template %q: %w", tpl.Type, err)
		}
	}

	for _, rule := range CoreRules() {
		if err := o.RegisterRule(rule); err != nil {
			return fmt.Errorf("register rule %q: %w", rule.ID, err)
		}
	}

	return nil
}
