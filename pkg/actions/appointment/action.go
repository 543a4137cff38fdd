package appointment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/template"
)

type AppointmentAction struct {
	CustomerID  string
	Service     string
	StartAt     string
	OffsetHours float64
	Notes       string
}

func NewAppointmentAction(config map[string]any) *AppointmentAction {
	customerID, _ := config["customer_id"].(string)
	service, _ := config["service"].(string)
	startAt, _ := config["start_at"].(string)
	offsetHours, _ := config["offset_hours"].(float64)
	notes, _ := config["notes"].(string)

	return &AppointmentAction{
		CustomerID:  customerID,
		Service:     service,
		StartAt:     startAt,
		OffsetHours: offsetHours,
		Notes:       notes,
	}
}

func (a *AppointmentAction) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "schedule_appointment")

	customerID, err := template.RenderWithContext(a.CustomerID, actionCtx)
	if err != nil {
		return nil, err
	}

	if customerID == "" {
		return nil, fmt.Errorf("appointment has no customer id")
	}

	if a.Service == "" {
		return nil, fmt.Errorf("appointment has no service")
	}

	var startAt time.Time

	switch {
	case a.OffsetHours > 0:
		startAt = time.Now().UTC().Add(time.Duration(a.OffsetHours * float64(time.Hour)))
	case a.StartAt != "":
		rendered, err := template.RenderWithContext(a.StartAt, actionCtx)
		if err != nil {
			return nil, err
		}

		startAt, err = time.Parse(time.RFC3339, rendered)
		if err != nil {
			return nil, fmt.Errorf("invalid appointment start time %q: %w", rendered, err)
		}
	default:
		return nil, fmt.Errorf("appointment needs start_at or offset_hours")
	}

	notes, err := template.RenderWithContext(a.Notes, actionCtx)
	if err != nil {
		return nil, err
	}

	appointmentID := uuid.New().String()

	logger.Info("Scheduled appointment",
		"appointment_id", appointmentID, "customer_id", customerID,
		"service", a.Service, "start_at", startAt.Format(time.RFC3339))

	result := map[string]any{
		"appointment_id": appointmentID,
		"customer_id":    customerID,
		"service":        a.Service,
		"start_at":       startAt.Format(time.RFC3339),
	}

	if notes != "" {
		result["notes"] = notes
	}

	return result, nil
}
