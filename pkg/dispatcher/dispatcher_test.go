package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/protocol"
	"github.com/modernmen/pulse/pkg/registry"
)

type recordingAction struct {
	factory *recordingFactory
	config  map[string]any
}

func (a *recordingAction) Execute(_ context.Context, actionCtx protocol.ActionContext, _ *slog.Logger) (map[string]any, error) {
	a.factory.executions++
	a.factory.lastCtx = actionCtx

	if a.factory.err != nil {
		return nil, a.factory.err
	}

	return map[string]any{"config": a.config}, nil
}

type recordingFactory struct {
	id         string
	err        error
	executions int
	lastCtx    protocol.ActionContext
}

func (f *recordingFactory) ID() string { return f.id }

func (f *recordingFactory) Create(config map[string]any) (protocol.Action, error) {
	return &recordingAction{factory: f, config: config}, nil
}

func (f *recordingFactory) Schema() map[string]any { return nil }

func newTestDispatcher(factories ...*recordingFactory) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewRegistry(logger)

	for _, f := range factories {
		reg.RegisterAction(f)
	}

	return New(logger, reg)
}

func TestDispatchRoutesToFactory(t *testing.T) {
	factory := &recordingFactory{id: "send_email"}
	d := newTestDispatcher(factory)

	actionCtx := protocol.ActionContext{WorkflowID: "wf-1", StepID: "step-1"}
	config := map[string]any{"to": "a@example.com"}

	result, err := d.Dispatch(context.Background(), "send_email", config, actionCtx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"config": config}, result)
	assert.Equal(t, 1, factory.executions)
	assert.Equal(t, "wf-1", factory.lastCtx.WorkflowID)
	assert.Equal(t, "step-1", factory.lastCtx.StepID)
}

func TestDispatchUnknownKind(t *testing.T) {
	d := newTestDispatcher()

	_, err := d.Dispatch(context.Background(), "send_fax", nil, protocol.ActionContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestDispatchDoesNotRetry(t *testing.T) {
	factory := &recordingFactory{id: "send_email", err: errors.New("smtp down")}
	d := newTestDispatcher(factory)

	_, err := d.Dispatch(context.Background(), "send_email", nil, protocol.ActionContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Equal(t, 1, factory.executions)
}

func TestRunCarriesRuleEvent(t *testing.T) {
	factory := &recordingFactory{id: "send_notification"}
	d := newTestDispatcher(factory)

	event := models.NewSystemEvent(models.EventTypeUser, "account", "created", map[string]any{"user_id": "u-1"})
	action := models.RuleAction{Kind: "send_notification", Config: map[string]any{"channel": "in_app"}}

	_, err := d.Run(context.Background(), action, event)
	require.NoError(t, err)
	require.NotNil(t, factory.lastCtx.Event)
	assert.Equal(t, event.ID, factory.lastCtx.Event.ID)
}
