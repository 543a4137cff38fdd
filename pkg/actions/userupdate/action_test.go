package userupdate

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernmen/pulse/pkg/protocol"
)

func TestUserUpdateWritesWorkflowContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	action := NewUserUpdateAction(map[string]any{
		"user_id": "{{.context.user_id}}",
		"fields": map[string]any{
			"onboarded": true,
			"plan":      "{{.context.requested_plan}}",
		},
	})

	workflowContext := map[string]any{
		"user_id":        "u-1",
		"requested_plan": "premium",
	}

	result, err := action.Execute(context.Background(), protocol.ActionContext{Context: workflowContext}, logger)
	require.NoError(t, err)
	assert.Equal(t, "u-1", result["user_id"])

	// Later steps see the updated attributes.
	assert.Equal(t, true, workflowContext["onboarded"])
	assert.Equal(t, "premium", workflowContext["plan"])
}

func TestUserUpdateValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewUserUpdateAction(map[string]any{
		"fields": map[string]any{"x": 1},
	}).Execute(context.Background(), protocol.ActionContext{}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user id")

	_, err = NewUserUpdateAction(map[string]any{
		"user_id": "u-1",
	}).Execute(context.Background(), protocol.ActionContext{}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fields")
}
