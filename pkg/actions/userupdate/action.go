package userupdate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/template"
)

type UserUpdateAction struct {
	UserID string
	Fields map[string]any
}

func NewUserUpdateAction(config map[string]any) *UserUpdateAction {
	userID, _ := config["user_id"].(string)
	fields, _ := config["fields"].(map[string]any)

	return &UserUpdateAction{
		UserID: userID,
		Fields: fields,
	}
}

func (a *UserUpdateAction) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "update_user")

	userID, err := template.RenderWithContext(a.UserID, actionCtx)
	if err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, fmt.Errorf("user update has no user id")
	}

	if len(a.Fields) == 0 {
		return nil, fmt.Errorf("user update has no fields")
	}

	applied := make(map[string]any, len(a.Fields))

	for name, value := range a.Fields {
		if str, ok := value.(string); ok {
			rendered, err := template.RenderWithContext(str, actionCtx)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}

			value = rendered
		}

		applied[name] = value

		// Updated attributes land in the workflow context so downstream
		// decision and wait steps observe them.
		if actionCtx.Context != nil {
			actionCtx.Context[name] = value
		}
	}

	logger.Info("Updated user", "user_id", userID, "fields", len(applied))

	return map[string]any{
		"user_id":    userID,
		"fields":     applied,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
