// Package scheduler owns the background cadence of the orchestrator: due
// deferred rule actions, suspended workflow resumption, log pruning, and
// recurring cron-driven event emission.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/modernmen/pulse/pkg/models"
)

const (
	DefaultDeferredInterval = 100 * time.Millisecond
	DefaultWorkflowInterval = 500 * time.Millisecond
	DefaultPruneInterval    = time.Minute
	DefaultRetention        = 24 * time.Hour
)

// DeferredRunner dispatches rule actions whose delay has elapsed.
type DeferredRunner interface {
	DrainDue(ctx context.Context) int
}

// WorkflowResumer re-drives suspended and runnable workflows.
type WorkflowResumer interface {
	ResumeDue(ctx context.Context)
}

// Pruner drops records older than the cutoff and reports how many went.
type Pruner interface {
	Prune(cutoff time.Time) int
}

// Emitter feeds cron-driven events into the bus.
type Emitter interface {
	Emit(ctx context.Context, event *models.SystemEvent)
}

type Scheduler struct {
	logger    *slog.Logger
	rules     DeferredRunner
	workflows WorkflowResumer
	pruners   []Pruner
	emitter   Emitter
	cron      *cron.Cron

	deferredInterval time.Duration
	workflowInterval time.Duration
	pruneInterval    time.Duration
	retention        time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

type Option func(*Scheduler)

func WithDeferredInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.deferredInterval = d }
}

func WithWorkflowInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.workflowInterval = d }
}

func WithPruneInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pruneInterval = d }
}

// WithRetention sets how far back pruned records are kept.
func WithRetention(d time.Duration) Option {
	return func(s *Scheduler) { s.retention = d }
}

func New(logger *slog.Logger, rules DeferredRunner, workflows WorkflowResumer, emitter Emitter, pruners []Pruner, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:           logger.With("module", "scheduler"),
		rules:            rules,
		workflows:        workflows,
		pruners:          pruners,
		emitter:          emitter,
		cron:             cron.New(),
		deferredInterval: DefaultDeferredInterval,
		workflowInterval: DefaultWorkflowInterval,
		pruneInterval:    DefaultPruneInterval,
		retention:        DefaultRetention,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AddCronEmission emits a fresh copy of the template event on the given cron
// schedule. Recurring business ticks (daily digests, hourly health probes)
// enter the engine this way.
func (s *Scheduler) AddCronEmission(spec string, tmpl models.SystemEvent) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		payload := make(map[string]any, len(tmpl.Payload))
		for k, v := range tmpl.Payload {
			payload[k] = v
		}

		event := models.NewSystemEvent(tmpl.Type, tmpl.Category, tmpl.Action, payload)
		event.Source = "scheduler"
		event.SubjectID = tmpl.SubjectID
		event.Priority = tmpl.Priority

		s.emitter.Emit(context.Background(), event)
	})
}

// Start launches the background loops. Idempotent until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	s.runLoop(ctx, s.deferredInterval, func() {
		if n := s.rules.DrainDue(ctx); n > 0 {
			s.logger.Debug("Dispatched deferred rule actions", "count", n)
		}
	})

	s.runLoop(ctx, s.workflowInterval, func() {
		s.workflows.ResumeDue(ctx)
	})

	s.runLoop(ctx, s.pruneInterval, func() {
		cutoff := time.Now().UTC().Add(-s.retention)

		for _, pruner := range s.pruners {
			pruner.Prune(cutoff)
		}
	})

	s.cron.Start()
	s.logger.Info("Scheduler started",
		"deferred_interval", s.deferredInterval,
		"workflow_interval", s.workflowInterval,
		"prune_interval", s.pruneInterval)
}

// Stop halts the loops and the cron runner, waiting for in-flight ticks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.started = false
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context, interval time.Duration, tick func()) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
}
