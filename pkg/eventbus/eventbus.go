// Package eventbus provides the synchronous publish/notify mechanism at the
// center of the orchestration core.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modernmen/pulse/pkg/eventlog"
	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/otelhelper"
)

// DefaultMaxHops bounds how many times one correlation id may traverse the
// rule-evaluation feedback loop before the bus stops evaluating rules for it.
const DefaultMaxHops = 16

// Evaluator is the rule engine hook invoked synchronously on every emit.
type Evaluator interface {
	Evaluate(ctx context.Context, event *models.SystemEvent)
}

// Handler receives events of a subscribed type.
type Handler func(ctx context.Context, event *models.SystemEvent)

// UnsubscribeFunc removes a previously registered handler.
type UnsubscribeFunc func()

type hopEntry struct {
	count int
	last  time.Time
}

// Bus fans an emitted event out to the bounded log, the rule engine and all
// type-scoped subscribers, in that order, within the same synchronous call.
type Bus struct {
	logger    *slog.Logger
	log       *eventlog.Log
	evaluator Evaluator
	mirror    *Mirror
	tracer    trace.Tracer
	maxHops   int

	mu          sync.RWMutex
	subscribers map[models.EventType]map[int]Handler
	nextToken   int
	hops        map[string]*hopEntry
}

// Option configures a Bus.
type Option func(*Bus)

// WithMirror attaches an outbound watermill mirror; every emitted event is
// also published there for external consumers.
func WithMirror(mirror *Mirror) Option {
	return func(b *Bus) { b.mirror = mirror }
}

// WithTracer enables span creation on the emit path. Event trace ids are
// taken from the span context when unset.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Bus) { b.tracer = tracer }
}

// WithMaxHops overrides the feedback-loop hop bound.
func WithMaxHops(maxHops int) Option {
	return func(b *Bus) { b.maxHops = maxHops }
}

func NewBus(logger *slog.Logger, log *eventlog.Log, opts ...Option) *Bus {
	bus := &Bus{
		logger:      logger.With("module", "eventbus"),
		log:         log,
		maxHops:     DefaultMaxHops,
		subscribers: make(map[models.EventType]map[int]Handler),
		hops:        make(map[string]*hopEntry),
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// SetEvaluator installs the rule engine hook. Kept separate from the
// constructor because the rule engine's actions emit through the bus.
func (b *Bus) SetEvaluator(evaluator Evaluator) {
	b.evaluator = evaluator
}

// Emit assigns missing identity fields, appends the event to the log,
// evaluates rules and notifies subscribers. Failures inside rules or
// subscribers are contained; Emit never reports them to the caller.
func (b *Bus) Emit(ctx context.Context, event *models.SystemEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if event.CorrelationID == "" {
		event.CorrelationID = uuid.New().String()
	}

	if b.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, b.tracer, "event.emit",
			attribute.String(otelhelper.EventIDKey, event.ID),
			attribute.String(otelhelper.EventSignatureKey, event.Signature()),
		)
		defer span.End()

		if event.TraceID == "" {
			event.TraceID = span.SpanContext().TraceID().String()
		}
	}

	if event.TraceID == "" {
		event.TraceID = uuid.New().String()
	}

	b.log.Append(event)

	if b.evaluator != nil {
		if b.recordHop(event.CorrelationID) {
			b.evaluator.Evaluate(ctx, event)
		} else {
			b.logger.Warn("Hop bound exceeded, skipping rule evaluation",
				"correlation_id", event.CorrelationID,
				"signature", event.Signature(),
				"max_hops", b.maxHops)
		}
	}

	b.notify(ctx, event)

	if b.mirror != nil {
		if err := b.mirror.Publish(event); err != nil {
			b.logger.Error("Failed to mirror event", "event_id", event.ID, "error", err)
		}
	}
}

// Subscribe registers a handler for one event type. Every matching emit
// reaches the handler exactly once until the returned function is called.
func (b *Bus) Subscribe(eventType models.EventType, handler Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[int]Handler)
	}

	token := b.nextToken
	b.nextToken++
	b.subscribers[eventType][token] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.subscribers[eventType], token)
	}
}

func (b *Bus) notify(ctx context.Context, event *models.SystemEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type]))

	for _, handler := range b.subscribers[event.Type] {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.callHandler(ctx, handler, event)
	}
}

// callHandler isolates one subscriber; a panic there must not abort delivery
// to the remaining subscribers.
func (b *Bus) callHandler(ctx context.Context, handler Handler, event *models.SystemEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Subscriber panicked", "event_id", event.ID, "panic", r)
		}
	}()

	handler(ctx, event)
}

// recordHop counts one rule-evaluation pass for the correlation id and
// reports whether the event is still under the hop bound.
func (b *Bus) recordHop(correlationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.hops[correlationID]
	if entry == nil {
		entry = &hopEntry{}
		b.hops[correlationID] = entry
	}

	entry.count++
	entry.last = time.Now().UTC()

	return entry.count <= b.maxHops
}

// PruneHops drops hop counters untouched since the cutoff. Called by the
// scheduler's prune tick.
func (b *Bus) PruneHops(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0

	for id, entry := range b.hops {
		if entry.last.Before(cutoff) {
			delete(b.hops, id)

			removed++
		}
	}

	return removed
}
