package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernmen/pulse/pkg/eventbus"
	"github.com/modernmen/pulse/pkg/models"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := New(logger, opts...)
	require.NoError(t, o.RegisterDefaults())
	t.Cleanup(o.Stop)

	return o
}

func TestRegistrationEventStartsOnboardingWorkflow(t *testing.T) {
	o := newTestOrchestrator(t)

	o.EmitNew(context.Background(), models.EventTypeUser, "registration", "completed", map[string]any{})

	active := o.ActiveWorkflows()
	require.Len(t, active, 1)
	assert.Equal(t, models.WorkflowStatusRunning, active[0].Status)
	assert.Equal(t, "onboarding", active[0].Type)

	rule, ok := o.Rule("user_registration_welcome")
	require.True(t, ok)
	assert.Equal(t, int64(1), rule.Stats.TriggerCount)
	assert.Equal(t, int64(1), rule.Stats.SuccessCount)
}

func TestOnboardingRunsThroughWithFullPayload(t *testing.T) {
	clock := newTestClock()
	o := newTestOrchestrator(t, WithClock(clock.Now))

	o.EmitNew(context.Background(), models.EventTypeUser, "registration", "completed", map[string]any{
		"user_id": "u-1",
		"name":    "Alice",
		"email":   "alice@example.com",
	})

	active := o.ActiveWorkflows()
	require.Len(t, active, 1)

	wf := active[0]
	assert.Equal(t, "Onboard Alice", wf.Name)
	assert.Equal(t, models.StepStatusCompleted, wf.Steps[0].Status)
	assert.Equal(t, models.StepStatusCompleted, wf.Steps[1].Status)
	assert.Equal(t, models.StepStatusRunning, wf.Steps[2].Status)

	// The settle-in wait elapses a day later.
	clock.Advance(25 * time.Hour)
	o.workflows.ResumeDue(context.Background())

	wf, err := o.Workflow(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, wf.Status)
}

func TestBookingConfirmationRule(t *testing.T) {
	o := newTestOrchestrator(t)

	o.EmitNew(context.Background(), models.EventTypeBusiness, "booking", "created", map[string]any{
		"email":   "bob@example.com",
		"phone":   "+15551230000",
		"date":    "2025-06-02",
		"service": "haircut",
	})

	rule, ok := o.Rule("booking_confirmation")
	require.True(t, ok)
	assert.Equal(t, int64(1), rule.Stats.TriggerCount)
	// Inline email succeeded; the reminder sms is deferred.
	assert.Equal(t, int64(1), rule.Stats.SuccessCount)
	assert.Equal(t, 1, o.GlobalState().PendingDeferred)

	// Wrong action does not fire the rule.
	o.EmitNew(context.Background(), models.EventTypeBusiness, "booking", "updated", map[string]any{})

	rule, _ = o.Rule("booking_confirmation")
	assert.Equal(t, int64(1), rule.Stats.TriggerCount)
}

func TestChurnPreventionDebounceAndConditions(t *testing.T) {
	clock := newTestClock()
	o := newTestOrchestrator(t, WithClock(clock.Now))

	payload := func(days int) map[string]any {
		return map[string]any{
			"user_id":               "u-9",
			"email":                 "carol@example.com",
			"days_since_last_visit": days,
			"lifetime_value":        800,
		}
	}

	// Below the threshold: no retention workflow.
	o.EmitNew(context.Background(), models.EventTypeUser, "engagement", "declined", payload(30))
	assert.Empty(t, o.Workflows())

	// Within the debounce window the rule does not reconsider.
	clock.Advance(time.Hour)
	o.EmitNew(context.Background(), models.EventTypeUser, "engagement", "declined", payload(31))
	assert.Empty(t, o.Workflows())

	clock.Advance(25 * time.Hour)
	o.EmitNew(context.Background(), models.EventTypeUser, "engagement", "declined", payload(31))

	workflows := o.Workflows()
	require.Len(t, workflows, 1)
	assert.Equal(t, "retention", workflows[0].Type)
	assert.Equal(t, models.WorkflowStatusCompleted, workflows[0].Status)

	// High lifetime value routed through the personal outreach branch.
	outreach, _, ok := workflows[0].StepByID("personal_outreach")
	require.True(t, ok)
	assert.Equal(t, models.StepStatusCompleted, outreach.Status)
}

func TestEventStreamMirror(t *testing.T) {
	o := newTestOrchestrator(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	messages, err := o.EventStream().Subscribe(ctx, eventbus.Topic)
	require.NoError(t, err)

	emitted := o.EmitNew(context.Background(), models.EventTypeSystem, "health", "checked", map[string]any{"ok": true})

	select {
	case msg := <-messages:
		assert.Equal(t, emitted.ID, msg.UUID)
		assert.Equal(t, "system.health.checked", msg.Metadata.Get(eventbus.SignatureMetadataKey))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("no mirrored message received")
	}
}

func TestGlobalState(t *testing.T) {
	o := newTestOrchestrator(t)

	o.EmitNew(context.Background(), models.EventTypeUser, "registration", "completed", map[string]any{"user_id": "u-1"})

	state := o.GlobalState()
	assert.Equal(t, 3, state.Rules)
	assert.Positive(t, state.EventsLogged)
	assert.Equal(t, 1, state.WorkflowsByState[models.WorkflowStatusRunning])

	onboarding, ok := state.Templates["onboarding"]
	require.True(t, ok)
	assert.Equal(t, int64(1), onboarding.Executions)
}

func TestEmitIsFireAndForget(t *testing.T) {
	o := newTestOrchestrator(t)

	// A rule whose only action always fails must not surface to the caller.
	require.NoError(t, o.RegisterRule(models.OrchestrationRule{
		ID:   "always_fails",
		Name: "Always fails",
		Trigger: models.RuleTrigger{
			EventSignature: "system.probe.fired",
		},
		Actions: []models.RuleAction{
			{Kind: "send_sms", Config: map[string]any{"to": "bad", "message": "x"}},
		},
		Enabled: true,
	}))

	o.EmitNew(context.Background(), models.EventTypeSystem, "probe", "fired", nil)

	rule, ok := o.Rule("always_fails")
	require.True(t, ok)
	assert.Equal(t, int64(1), rule.Stats.TriggerCount)
	assert.Equal(t, int64(1), rule.Stats.FailureCount)
}
