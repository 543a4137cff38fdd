package sms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/template"
)

type SMSAction struct {
	To      string
	Message string
}

func NewSMSAction(config map[string]any) *SMSAction {
	to, _ := config["to"].(string)
	message, _ := config["message"].(string)

	return &SMSAction{
		To:      to,
		Message: message,
	}
}

func (a *SMSAction) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "send_sms")

	to, err := template.RenderWithContext(a.To, actionCtx)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(to, "+") {
		return nil, fmt.Errorf("sms destination %q is not an E.164 number", to)
	}

	message, err := template.RenderWithContext(a.Message, actionCtx)
	if err != nil {
		return nil, err
	}

	if message == "" {
		return nil, fmt.Errorf("sms message is empty")
	}

	segments := (len(message) + segmentSize - 1) / segmentSize

	logger.Info("Queued sms", "to", to, "segments", segments)

	return map[string]any{
		"to":        to,
		"segments":  segments,
		"queued_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
