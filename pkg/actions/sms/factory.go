// Package sms provides the SMS delivery action.
package sms

import (
	"github.com/modernmen/pulse/pkg/protocol"
)

// segmentSize is the GSM-7 single-segment limit.
const segmentSize = 160

func NewSMSActionFactory() *SMSActionFactory {
	return &SMSActionFactory{}
}

type SMSActionFactory struct{}

func (*SMSActionFactory) ID() string {
	return "send_sms"
}

func (f *SMSActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewSMSAction(config), nil
}

func (f *SMSActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Destination phone number in E.164 form. Supports templating.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message text. Supports templating. Long messages are split into segments.",
			},
		},
		"required": []string{"to", "message"},
	}
}
