// Package orchestrator assembles the event log, bus, rule engine, workflow
// engine, action registry and scheduler into one facade with a small API
// surface: emit events, register rules and templates, observe state.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	"github.com/modernmen/pulse/pkg/actions/appointment"
	"github.com/modernmen/pulse/pkg/actions/email"
	"github.com/modernmen/pulse/pkg/actions/notification"
	"github.com/modernmen/pulse/pkg/actions/sms"
	"github.com/modernmen/pulse/pkg/actions/task"
	"github.com/modernmen/pulse/pkg/actions/userupdate"
	workflow_action "github.com/modernmen/pulse/pkg/actions/workflow"
	"github.com/modernmen/pulse/pkg/dispatcher"
	"github.com/modernmen/pulse/pkg/eventbus"
	"github.com/modernmen/pulse/pkg/eventlog"
	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/registry"
	"github.com/modernmen/pulse/pkg/rules"
	"github.com/modernmen/pulse/pkg/scheduler"
	"github.com/modernmen/pulse/pkg/workflow"
)

// Orchestrator owns every subsystem of one engine instance. Multiple
// independent instances can coexist in one process.
type Orchestrator struct {
	logger     *slog.Logger
	log        *eventlog.Log
	bus        *eventbus.Bus
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	rules      *rules.Engine
	workflows  *workflow.Engine
	scheduler  *scheduler.Scheduler
	mirror     *eventbus.Mirror
	stream     message.Subscriber
}

type config struct {
	logCapacity   int
	clock         func() time.Time
	tracer        trace.Tracer
	mirror        bool
	schedulerOpts []scheduler.Option
}

type Option func(*config)

// WithLogCapacity overrides the bounded event log capacity.
func WithLogCapacity(n int) Option {
	return func(c *config) { c.logCapacity = n }
}

// WithClock injects the time source used by rule cooldowns and workflow
// waits. The scheduler keeps wall-clock tickers regardless.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.clock = now }
}

// WithTracer enables span creation on the emit path.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) { c.tracer = tracer }
}

// WithoutMirror disables the watermill event mirror.
func WithoutMirror() Option {
	return func(c *config) { c.mirror = false }
}

// WithSchedulerOptions forwards options to the background scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(c *config) { c.schedulerOpts = opts }
}

func New(logger *slog.Logger, opts ...Option) *Orchestrator {
	cfg := config{
		logCapacity: eventlog.DefaultCapacity,
		mirror:      true,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Orchestrator{
		logger: logger.With("module", "orchestrator"),
		log:    eventlog.New(cfg.logCapacity),
	}

	busOpts := []eventbus.Option{}

	if cfg.mirror {
		mirror, stream := eventbus.NewGoChannelMirror(watermill.NopLogger{})
		o.mirror = mirror
		o.stream = stream
		busOpts = append(busOpts, eventbus.WithMirror(mirror))
	}

	if cfg.tracer != nil {
		busOpts = append(busOpts, eventbus.WithTracer(cfg.tracer))
	}

	o.bus = eventbus.NewBus(logger, o.log, busOpts...)
	o.registry = registry.NewRegistry(logger)
	o.dispatcher = dispatcher.New(logger, o.registry)

	ruleOpts := []rules.Option{}
	workflowOpts := []workflow.Option{}

	if cfg.clock != nil {
		ruleOpts = append(ruleOpts, rules.WithClock(cfg.clock))
		workflowOpts = append(workflowOpts, workflow.WithClock(cfg.clock))
	}

	o.rules = rules.NewEngine(logger, o.dispatcher, o.registry, ruleOpts...)
	o.workflows = workflow.NewEngine(logger, o.dispatcher, o.bus, o.registry, workflowOpts...)
	o.bus.SetEvaluator(o.rules)

	o.registry.RegisterAction(notification.NewNotificationActionFactory())
	o.registry.RegisterAction(email.NewEmailActionFactory())
	o.registry.RegisterAction(sms.NewSMSActionFactory())
	o.registry.RegisterAction(task.NewTaskActionFactory())
	o.registry.RegisterAction(userupdate.NewUserUpdateActionFactory())
	o.registry.RegisterAction(appointment.NewAppointmentActionFactory())
	o.registry.RegisterAction(workflow_action.NewWorkflowActionFactory(o.workflows))

	o.scheduler = scheduler.New(
		logger,
		o.rules,
		o.workflows,
		o.bus,
		[]scheduler.Pruner{o.log, hopPruner{o.bus}},
		cfg.schedulerOpts...,
	)

	return o
}

type hopPruner struct{ bus *eventbus.Bus }

func (h hopPruner) Prune(cutoff time.Time) int { return h.bus.PruneHops(cutoff) }

// Start launches the background scheduler. Emitting works without Start;
// only delayed rule actions, wait resumption and pruning need it.
func (o *Orchestrator) Start(ctx context.Context) {
	o.scheduler.Start(ctx)
}

// Stop halts the scheduler and closes the event mirror.
func (o *Orchestrator) Stop() {
	o.scheduler.Stop()

	if o.mirror != nil {
		if err := o.mirror.Close(); err != nil {
			o.logger.Error("Failed to close event mirror", "error", err)
		}
	}
}

// Emit is fire-and-forget: the event is logged, evaluated against every
// rule and broadcast before Emit returns. Failures inside rules or
// workflows never surface here.
func (o *Orchestrator) Emit(ctx context.Context, event *models.SystemEvent) {
	o.bus.Emit(ctx, event)
}

// EmitNew builds a SystemEvent from its parts and emits it.
func (o *Orchestrator) EmitNew(ctx context.Context, eventType models.EventType, category, action string, payload map[string]any) *models.SystemEvent {
	event := models.NewSystemEvent(eventType, category, action, payload)
	o.Emit(ctx, event)

	return event
}

// Subscribe attaches a handler to all events of one type.
func (o *Orchestrator) Subscribe(eventType models.EventType, handler eventbus.Handler) eventbus.UnsubscribeFunc {
	return o.bus.Subscribe(eventType, handler)
}

// EventStream exposes the watermill subscriber side of the event mirror,
// or nil when the mirror is disabled. Consume with eventbus.Topic.
func (o *Orchestrator) EventStream() message.Subscriber {
	return o.stream
}

// RecentEvents returns up to n most recent events, oldest first.
func (o *Orchestrator) RecentEvents(n int) []*models.SystemEvent {
	return o.log.Recent(n)
}

// RegisterRule validates and installs one rule.
func (o *Orchestrator) RegisterRule(rule models.OrchestrationRule) error {
	return o.rules.Register(rule)
}

// Rules returns snapshots of all registered rules in registration order.
func (o *Orchestrator) Rules() []models.OrchestrationRule {
	return o.rules.Rules()
}

// Rule returns a snapshot of one rule.
func (o *Orchestrator) Rule(id string) (models.OrchestrationRule, bool) {
	return o.rules.Rule(id)
}

// SetRuleEnabled flips one rule without unregistering it.
func (o *Orchestrator) SetRuleEnabled(id string, enabled bool) error {
	return o.rules.SetEnabled(id, enabled)
}

// RegisterTemplate validates and installs one workflow template.
func (o *Orchestrator) RegisterTemplate(tpl models.WorkflowTemplate) error {
	return o.workflows.RegisterTemplate(tpl)
}

// Templates returns all registered workflow templates.
func (o *Orchestrator) Templates() []models.WorkflowTemplate {
	return o.workflows.Templates()
}

// Template returns one registered workflow template.
func (o *Orchestrator) Template(wfType string) (models.WorkflowTemplate, bool) {
	return o.workflows.Template(wfType)
}

// StartWorkflow instantiates a workflow directly, outside any rule.
func (o *Orchestrator) StartWorkflow(ctx context.Context, name, wfType string, trigger models.WorkflowTrigger, contextData map[string]any) (string, error) {
	return o.workflows.Start(ctx, name, wfType, trigger, contextData)
}

// CancelWorkflow terminates a non-terminal workflow.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, workflowID, reason string) error {
	return o.workflows.Cancel(ctx, workflowID, reason)
}

// AdvanceWorkflowStep externally completes the current step of a workflow.
func (o *Orchestrator) AdvanceWorkflowStep(ctx context.Context, workflowID, stepID string, result map[string]any) error {
	return o.workflows.AdvanceStep(ctx, workflowID, stepID, result)
}

// Workflow returns a snapshot of one execution.
func (o *Orchestrator) Workflow(workflowID string) (models.WorkflowExecution, error) {
	return o.workflows.Workflow(workflowID)
}

// ActiveWorkflows returns all executions currently in status running.
func (o *Orchestrator) ActiveWorkflows() []models.WorkflowExecution {
	return o.workflows.ActiveWorkflows()
}

// Workflows returns all executions in creation order.
func (o *Orchestrator) Workflows() []models.WorkflowExecution {
	return o.workflows.Workflows()
}

// AvailableActions lists the registered action kinds.
func (o *Orchestrator) AvailableActions() []string {
	return o.registry.AvailableActions()
}

// AddCronEmission emits a copy of the template event on a cron schedule.
func (o *Orchestrator) AddCronEmission(spec string, tmpl models.SystemEvent) error {
	_, err := o.scheduler.AddCronEmission(spec, tmpl)

	return err
}

// Stats is the orchestrator-wide observability snapshot.
type Stats struct {
	EventsLogged     int                               `json:"events_logged"`
	LogCapacity      int                               `json:"log_capacity"`
	Rules            int                               `json:"rules"`
	PendingDeferred  int                               `json:"pending_deferred"`
	WorkflowsByState map[models.WorkflowStatus]int     `json:"workflows_by_state"`
	Templates        map[string]models.TemplateMetrics `json:"templates"`
}

// GlobalState aggregates counters across every subsystem.
func (o *Orchestrator) GlobalState() Stats {
	templates := make(map[string]models.TemplateMetrics)

	for _, tpl := range o.workflows.Templates() {
		templates[tpl.Type] = tpl.Metrics
	}

	return Stats{
		EventsLogged:     o.log.Len(),
		LogCapacity:      o.log.Capacity(),
		Rules:            len(o.rules.Rules()),
		PendingDeferred:  o.rules.PendingDeferred(),
		WorkflowsByState: o.workflows.CountByStatus(),
		Templates:        templates,
	}
}
