// Package userupdate provides the action that writes attribute changes into
// the workflow context so later steps can branch on them.
package userupdate

import (
	"github.com/modernmen/pulse/pkg/protocol"
)

func NewUserUpdateActionFactory() *UserUpdateActionFactory {
	return &UserUpdateActionFactory{}
}

type UserUpdateActionFactory struct{}

func (*UserUpdateActionFactory) ID() string {
	return "update_user"
}

func (f *UserUpdateActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewUserUpdateAction(config), nil
}

func (f *UserUpdateActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{
				"type":        "string",
				"description": "Id of the user to update. Supports templating.",
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Attribute names and values to set on the user record.",
			},
		},
		"required": []string{"user_id", "fields"},
	}
}
