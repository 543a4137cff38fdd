// Package email provides the transactional email action.
package email

import (
	"github.com/modernmen/pulse/pkg/protocol"
)

func NewEmailActionFactory() *EmailActionFactory {
	return &EmailActionFactory{}
}

type EmailActionFactory struct{}

func (*EmailActionFactory) ID() string {
	return "send_email"
}

func (f *EmailActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewEmailAction(config), nil
}

func (f *EmailActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient address. Supports templating, e.g. {{.event.payload.email}}.",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject line. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Plain-text body. Supports templating. Ignored when template_id is set.",
			},
			"template_id": map[string]any{
				"type":        "string",
				"description": "Id of a pre-registered mail template to render instead of body.",
			},
		},
		"required": []string{"to", "subject"},
	}
}
