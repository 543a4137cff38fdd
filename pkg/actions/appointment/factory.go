// Package appointment provides the booking/appointment scheduling action.
package appointment

import (
	"github.com/modernmen/pulse/pkg/protocol"
)

func NewAppointmentActionFactory() *AppointmentActionFactory {
	return &AppointmentActionFactory{}
}

type AppointmentActionFactory struct{}

func (*AppointmentActionFactory) ID() string {
	return "schedule_appointment"
}

func (f *AppointmentActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAppointmentAction(config), nil
}

func (f *AppointmentActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"customer_id": map[string]any{
				"type":        "string",
				"description": "Customer the appointment is booked for. Supports templating.",
			},
			"service": map[string]any{
				"type":        "string",
				"description": "Service identifier for the slot.",
			},
			"start_at": map[string]any{
				"type":        "string",
				"description": "RFC3339 start time. Supports templating. Ignored when offset_hours is set.",
			},
			"offset_hours": map[string]any{
				"type":        "number",
				"description": "Hours from now to schedule the slot, as an alternative to start_at.",
				"minimum":     0,
			},
			"notes": map[string]any{
				"type":        "string",
				"description": "Free-form booking notes. Supports templating.",
			},
		},
		"required": []string{"customer_id", "service"},
	}
}
