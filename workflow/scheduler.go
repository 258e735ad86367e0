package workflow

import (
	"context"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/cartograph-dev/cartograph/taskerror"
	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/telemetry"
	"github.com/cartograph-dev/cartograph/upstream"
)

// Scheduler spawns registered workflows as background goroutines and
// writes their terminal outcome back to the task store. Execution is
// strictly in-process, so there is no durable-engine abstraction layer;
// one concrete implementation is the whole runtime.
type Scheduler struct {
	store    *taskstore.Store
	registry *Registry
	client   upstream.Client
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	tracer   telemetry.Tracer
}

// SchedulerOption configures optional Scheduler collaborators.
type SchedulerOption func(*Scheduler)

// WithMetrics wires a metrics recorder for task lifecycle counters and the
// per-execution timer.
func WithMetrics(m telemetry.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracer wires a tracer that opens one span per task execution.
func WithTracer(tr telemetry.Tracer) SchedulerOption {
	return func(s *Scheduler) { s.tracer = tr }
}

// NewScheduler constructs a Scheduler. logger may be nil, in which case a
// noop logger is used; metrics and tracing default to noops unless set via
// options.
func NewScheduler(store *taskstore.Store, registry *Registry, client upstream.Client, logger telemetry.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	s := &Scheduler{
		store:    store,
		registry: registry,
		client:   client,
		logger:   logger,
		metrics:  telemetry.NewNoopMetrics(),
		tracer:   telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Launch looks up the workflow registered under workflowType and runs it on
// a new goroutine against taskCtx (the task's cancellation context, as
// returned by taskstore.Store.Create). Launch returns immediately after
// spawning the goroutine; it never blocks on the workflow's completion.
// Callers poll via tasks.get / tasks.result.
func (s *Scheduler) Launch(taskCtx context.Context, taskID, workflowType string, args map[string]any) error {
	fn, ok := s.registry.Lookup(workflowType)
	if !ok {
		s.metrics.IncCounter("cartograph_tasks_failed_total", 1, "type", workflowType)
		return s.store.SetError(taskID, taskerror.AsRecord("dispatch", taskerror.Validation("dispatch", "unknown workflow type %q", workflowType)))
	}
	if err := s.store.UpdateStatus(taskID, taskstore.StatusWorking); err != nil {
		return err
	}
	s.metrics.IncCounter("cartograph_tasks_started_total", 1, "type", workflowType)
	go s.run(taskCtx, taskID, workflowType, fn, args)
	return nil
}

func (s *Scheduler) run(ctx context.Context, taskID, workflowType string, fn Func, args map[string]any) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "cartograph.task.execute")
	defer span.End()
	defer func() {
		s.metrics.RecordTimer("cartograph_task_duration", time.Since(start), "type", workflowType)
	}()

	result, err := s.invoke(ctx, taskID, fn, args)

	if ctx.Err() != nil {
		// The task was cancelled out from under the workflow; taskstore.Cancel
		// already set the terminal status, so there is nothing further to
		// record here regardless of what the workflow returned.
		s.metrics.IncCounter("cartograph_tasks_cancelled_total", 1, "type", workflowType)
		return
	}
	if err != nil {
		rec := taskerror.AsRecord("workflow", err)
		s.logger.Error(ctx, "workflow failed", "taskID", taskID, "step", rec.Step, "message", rec.Message)
		s.metrics.IncCounter("cartograph_tasks_failed_total", 1, "type", workflowType)
		span.RecordError(err)
		span.SetStatus(codes.Error, rec.Message)
		_ = s.store.SetError(taskID, rec)
		return
	}
	s.metrics.IncCounter("cartograph_tasks_completed_total", 1, "type", workflowType)
	if result == nil {
		// A nil, nil return that reaches this point did not come from
		// cancellation (ctx.Err() is nil, checked above), so it is recorded
		// as a normal empty completion.
		_ = s.store.SetResult(taskID, nil)
		return
	}
	_ = s.store.SetResult(taskID, result)
}

// invoke runs fn with panic recovery, converting a panic into an internal
// taskerror so one misbehaving workflow never crashes the process.
func (s *Scheduler) invoke(ctx context.Context, taskID string, fn Func, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "workflow panicked", "taskID", taskID, "recover", r, "stack", string(debug.Stack()))
			err = taskerror.Internal("workflow", panicError{r})
		}
	}()
	return fn(ctx, taskID, args, s.client, s.store)
}

type panicError struct{ v any }

func (p panicError) Error() string { return "panic: " + toString(p.v) }

func toString(v any) string {
	if e, ok := v.(error); ok {
		return e.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic value"
}
