package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/template"
)

type NotificationAction struct {
	Channel   string
	Recipient string
	Title     string
	Message   string
}

func NewNotificationAction(config map[string]any) *NotificationAction {
	channel, _ := config["channel"].(string)
	if channel == "" {
		channel = "in_app"
	}

	recipient, _ := config["recipient"].(string)
	title, _ := config["title"].(string)
	message, _ := config["message"].(string)

	return &NotificationAction{
		Channel:   channel,
		Recipient: recipient,
		Title:     title,
		Message:   message,
	}
}

func (a *NotificationAction) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "send_notification", "channel", a.Channel)

	recipient, err := template.RenderWithContext(a.Recipient, actionCtx)
	if err != nil {
		return nil, err
	}

	if recipient == "" {
		return nil, fmt.Errorf("notification has no recipient")
	}

	message, err := template.RenderWithContext(a.Message, actionCtx)
	if err != nil {
		return nil, err
	}

	title, err := template.RenderWithContext(a.Title, actionCtx)
	if err != nil {
		return nil, err
	}

	logger.Info("Delivered notification", "recipient", recipient, "title", title)

	return map[string]any{
		"channel":   a.Channel,
		"recipient": recipient,
		"title":     title,
		"message":   message,
		"sent_at":   time.Now().UTC().Format(time.RFC3339),
	}, nil
}
