package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/template"
)

type EmailAction struct {
	To         string
	Subject    string
	Body       string
	TemplateID string
}

func NewEmailAction(config map[string]any) *EmailAction {
	to, _ := config["to"].(string)
	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)
	templateID, _ := config["template_id"].(string)

	return &EmailAction{
		To:         to,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
	}
}

func (a *EmailAction) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "send_email")

	to, err := template.RenderWithContext(a.To, actionCtx)
	if err != nil {
		return nil, err
	}

	if !strings.Contains(to, "@") {
		return nil, fmt.Errorf("invalid email recipient %q", to)
	}

	subject, err := template.RenderWithContext(a.Subject, actionCtx)
	if err != nil {
		return nil, err
	}

	body, err := template.RenderWithContext(a.Body, actionCtx)
	if err != nil {
		return nil, err
	}

	logger.Info("Queued email", "to", to, "subject", subject, "template_id", a.TemplateID)

	result := map[string]any{
		"to":        to,
		"subject":   subject,
		"queued_at": time.Now().UTC().Format(time.RFC3339),
	}

	if a.TemplateID != "" {
		result["template_id"] = a.TemplateID
	} else {
		result["body"] = body
	}

	return result, nil
}
