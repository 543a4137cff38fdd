// Package notification provides the in-app/push notification action.
package notification

import (
	"github.com/modernmen/pulse/pkg/protocol"
)

func NewNotificationActionFactory() *NotificationActionFactory {
	return &NotificationActionFactory{}
}

type NotificationActionFactory struct{}

func (*NotificationActionFactory) ID() string {
	return "send_notification"
}

func (f *NotificationActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewNotificationAction(config), nil
}

func (f *NotificationActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"channel": map[string]any{
				"type":        "string",
				"description": "Delivery channel for the notification",
				"default":     "in_app",
				"enum":        []string{"in_app", "push"},
			},
			"recipient": map[string]any{
				"type":        "string",
				"description": "Recipient id. Supports templating, e.g. {{.event.payload.user_id}}.",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Notification title. Supports templating.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Notification body. Supports templating.",
			},
		},
		"required": []string{"recipient", "message"},
	}
}
