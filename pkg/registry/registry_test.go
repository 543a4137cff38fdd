package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernmen/pulse/pkg/protocol"
)

type stubAction struct{}

func (stubAction) Execute(context.Context, protocol.ActionContext, *slog.Logger) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

type stubFactory struct {
	id     string
	schema map[string]any
}

func (f stubFactory) ID() string { return f.id }

func (f stubFactory) Create(map[string]any) (protocol.Action, error) {
	return stubAction{}, nil
}

func (f stubFactory) Schema() map[string]any { return f.schema }

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterAndCreate(t *testing.T) {
	reg := newTestRegistry()
	reg.RegisterAction(stubFactory{id: "send_email"})

	assert.True(t, reg.IsRegistered("send_email"))
	assert.False(t, reg.IsRegistered("send_fax"))
	assert.ElementsMatch(t, []string{"send_email"}, reg.AvailableActions())

	action, err := reg.CreateAction("send_email", nil)
	require.NoError(t, err)
	require.NotNil(t, action)

	_, err = reg.CreateAction("send_fax", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestValidateConfig(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"to"},
		"properties": map[string]any{
			"to":      map[string]any{"type": "string"},
			"subject": map[string]any{"type": "string"},
		},
	}

	reg := newTestRegistry()
	reg.RegisterAction(stubFactory{id: "send_email", schema: schema})
	reg.RegisterAction(stubFactory{id: "noop"})

	tests := []struct {
		name    string
		kind    string
		config  map[string]any
		wantErr string
	}{
		{
			name:   "valid config",
			kind:   "send_email",
			config: map[string]any{"to": "a@example.com", "subject": "hi"},
		},
		{
			name:    "missing required field",
			kind:    "send_email",
			config:  map[string]any{"subject": "hi"},
			wantErr: "to is required",
		},
		{
			name:    "wrong field type",
			kind:    "send_email",
			config:  map[string]any{"to": 42},
			wantErr: "Invalid type",
		},
		{
			name:    "nil config fails required",
			kind:    "send_email",
			wantErr: "to is required",
		},
		{
			name:   "schemaless factory accepts anything",
			kind:   "noop",
			config: map[string]any{"whatever": []int{1, 2}},
		},
		{
			name:    "unknown kind",
			kind:    "send_fax",
			wantErr: "not registered",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := reg.ValidateConfig(tc.kind, tc.config)

			if tc.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
