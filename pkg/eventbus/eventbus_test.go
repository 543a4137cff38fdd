package eventbus

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernmen/pulse/pkg/eventlog"
	"github.com/modernmen/pulse/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingEvaluator struct {
	events []*models.SystemEvent
}

func (r *recordingEvaluator) Evaluate(_ context.Context, event *models.SystemEvent) {
	r.events = append(r.events, event)
}

func newEvent(eventType models.EventType, category, action string) *models.SystemEvent {
	return &models.SystemEvent{Type: eventType, Category: category, Action: action}
}

func TestBus_EmitAssignsIdentity(t *testing.T) {
	bus := NewBus(testLogger(), eventlog.New(10))

	event := newEvent(models.EventTypeUser, "registration", "completed")
	bus.Emit(context.Background(), event)

	assert.NotEmpty(t, event.ID)
	assert.NotEmpty(t, event.CorrelationID)
	assert.NotEmpty(t, event.TraceID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestBus_EmitOrdering(t *testing.T) {
	log := eventlog.New(10)
	evaluator := &recordingEvaluator{}
	bus := NewBus(testLogger(), log)
	bus.SetEvaluator(evaluator)

	var order []string

	bus.Subscribe(models.EventTypeUser, func(_ context.Context, _ *models.SystemEvent) {
		// By the time a subscriber runs, both the log append and the rule
		// evaluation have happened.
		order = append(order, "subscriber")
		assert.Equal(t, 1, log.Len())
		assert.Len(t, evaluator.events, 1)
	})

	bus.Emit(context.Background(), newEvent(models.EventTypeUser, "registration", "completed"))

	require.Equal(t, []string{"subscriber"}, order)
}

func TestBus_SubscriberIsolation(t *testing.T) {
	bus := NewBus(testLogger(), eventlog.New(10))

	calls := 0

	bus.Subscribe(models.EventTypeSystem, func(_ context.Context, _ *models.SystemEvent) {
		panic("subscriber exploded")
	})
	bus.Subscribe(models.EventTypeSystem, func(_ context.Context, _ *models.SystemEvent) {
		calls++
	})

	bus.Emit(context.Background(), newEvent(models.EventTypeSystem, "workflow", "started"))

	assert.Equal(t, 1, calls, "panicking subscriber must not abort delivery")
}

func TestBus_SubscribeByType(t *testing.T) {
	bus := NewBus(testLogger(), eventlog.New(10))

	var userEvents, businessEvents int

	bus.Subscribe(models.EventTypeUser, func(_ context.Context, _ *models.SystemEvent) { userEvents++ })
	unsubscribe := bus.Subscribe(models.EventTypeBusiness, func(_ context.Context, _ *models.SystemEvent) { businessEvents++ })

	bus.Emit(context.Background(), newEvent(models.EventTypeUser, "session", "started"))
	bus.Emit(context.Background(), newEvent(models.EventTypeBusiness, "booking", "created"))

	assert.Equal(t, 1, userEvents)
	assert.Equal(t, 1, businessEvents)

	unsubscribe()
	bus.Emit(context.Background(), newEvent(models.EventTypeBusiness, "booking", "created"))
	assert.Equal(t, 1, businessEvents, "unsubscribed handler must not fire")
}

func TestBus_HopBound(t *testing.T) {
	evaluator := &recordingEvaluator{}
	bus := NewBus(testLogger(), eventlog.New(100), WithMaxHops(3))
	bus.SetEvaluator(evaluator)

	for i := 0; i < 6; i++ {
		bus.Emit(context.Background(), &models.SystemEvent{
			Type:          models.EventTypeSystem,
			Category:      "workflow",
			Action:        "started",
			CorrelationID: "corr-1",
		})
	}

	// Only the first three emits under the shared correlation id reach the
	// rule engine.
	assert.Len(t, evaluator.events, 3)
}

func TestBus_PruneHops(t *testing.T) {
	bus := NewBus(testLogger(), eventlog.New(10), WithMaxHops(1))
	bus.SetEvaluator(&recordingEvaluator{})

	bus.Emit(context.Background(), &models.SystemEvent{
		Type: models.EventTypeSystem, Category: "workflow", Action: "started", CorrelationID: "corr-old",
	})

	removed := bus.PruneHops(time.Now().UTC().Add(time.Minute))
	assert.Equal(t, 1, removed)
}

func TestMirror_PublishesEmittedEvents(t *testing.T) {
	mirror, subscriber := NewGoChannelMirror(watermill.NopLogger{})
	bus := NewBus(testLogger(), eventlog.New(10), WithMirror(mirror))

	messages, err := subscriber.Subscribe(context.Background(), Topic)
	require.NoError(t, err)

	bus.Emit(context.Background(), newEvent(models.EventTypeBusiness, "booking", "created"))

	select {
	case msg := <-messages:
		assert.Equal(t, "business.booking.created", msg.Metadata.Get(SignatureMetadataKey))
		assert.Equal(t, "business", msg.Metadata.Get(EventTypeMetadataKey))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("mirrored message not received")
	}
}
