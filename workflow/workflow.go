package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/crewflow/internal/ctxkeys"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/BaSui01/crewflow/workflow"

// Workflow is a named, insertion-ordered set of steps plus the shared memory
// they write into. It is created by WorkflowBuilder.Build and runs once.
type Workflow struct {
	name           string
	description    string
	typ            Type
	steps          []*WorkflowStep
	index          map[string]*WorkflowStep
	memory         *Memory
	maxConcurrency int
	timeout        time.Duration
	maxIterations  int
	selector       StepSelector
	execCtx        *ExecutionContext
	observer       Observer
	logger         *zap.Logger
	tracer         trace.Tracer

	mu        sync.RWMutex
	status    Status
	runID     string
	startTime time.Time
	endTime   time.Time
	rounds    atomic.Int32
	cancelled atomic.Bool
}

// Execute runs the workflow with the strategy selected by its Type and
// returns a snapshot of the shared memory.
//
// The first step that exhausts its retries stops the run and its error is
// returned unchanged; results of steps that already finished remain available
// through Memory.
//
// A workflow runs at most once: a second call returns ErrAlreadyExecuted, and
// a workflow cancelled before it started returns ErrWorkflowCancelled without
// calling any agent.
func (w *Workflow) Execute(ctx context.Context) (map[string]any, error) {
	if err := w.start(); err != nil {
		return nil, err
	}

	ctx, span := w.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.name", w.name),
		attribute.String("workflow.type", string(w.typ)),
		attribute.String("workflow.run_id", w.RunID()),
		attribute.Int("workflow.steps", len(w.steps)),
	))
	defer span.End()

	ctx = ctxkeys.WithRunID(ctx, w.RunID())
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = ctxkeys.WithTraceID(ctx, sc.TraceID().String())
	}

	w.logger.Info("workflow started",
		zap.String("run_id", w.RunID()),
		zap.String("type", string(w.typ)),
		zap.Int("steps", len(w.steps)),
		zap.Int("max_concurrency", w.maxConcurrency),
	)
	w.observer.OnWorkflowStart(ctx, w)

	err := strategyFor(w.typ).run(ctx, w)
	w.finish(err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("workflow failed",
			zap.String("run_id", w.RunID()),
			zap.String("status", string(w.Status())),
			zap.Duration("duration", w.Duration()),
			zap.Error(err),
		)
	} else {
		w.logger.Info("workflow completed",
			zap.String("run_id", w.RunID()),
			zap.Int32("rounds", w.rounds.Load()),
			zap.Duration("duration", w.Duration()),
		)
	}
	w.observer.OnWorkflowEnd(ctx, w, err)

	if err != nil {
		return nil, err
	}
	return w.memory.Snapshot(), nil
}

// Cancel stops the run before its next dispatch. Pending and running steps are
// marked cancelled; agent calls already in flight run to completion.
func (w *Workflow) Cancel() {
	w.cancelled.Store(true)

	w.mu.Lock()
	if !w.status.IsTerminal() {
		w.status = StatusCancelled
	}
	w.mu.Unlock()

	for _, s := range w.steps {
		s.Cancel()
	}
	w.logger.Info("workflow cancellation requested", zap.String("run_id", w.RunID()))
}

func (w *Workflow) start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusCancelled && w.runID == "" {
		// Cancel 早于 Execute
		return ErrWorkflowCancelled
	}
	if w.status != StatusPending {
		return ErrAlreadyExecuted
	}
	w.status = StatusRunning
	w.runID = uuid.NewString()
	w.startTime = time.Now()
	return nil
}

func (w *Workflow) finish(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.endTime = time.Now()
	switch {
	case w.cancelled.Load():
		w.status = StatusCancelled
	case err == nil:
		w.status = StatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		w.status = StatusCancelled
	default:
		w.status = StatusFailed
	}
}

// runStep is the single execution path every strategy goes through.
func (w *Workflow) runStep(ctx context.Context, step *WorkflowStep) error {
	if err := w.checkCancelled(ctx); err != nil {
		return err
	}

	ctx, span := w.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.name", w.name),
		attribute.String("step.name", step.name),
		attribute.String("step.agent", AgentName(step.agent)),
	))
	defer span.End()
	ctx = ctxkeys.WithStepName(ctx, step.name)

	w.observer.OnStepStart(ctx, w, step)
	w.logger.Debug("executing step",
		zap.String("step", step.name),
		zap.String("agent", AgentName(step.agent)),
		zap.Strings("depends_on", step.dependsOn),
	)

	_, err := step.Execute(ctx, w.execCtx, w.memory)

	span.SetAttributes(
		attribute.Int("step.attempts", step.Attempts()),
		attribute.Bool("step.skipped", step.Skipped()),
		attribute.String("step.status", string(step.Status())),
	)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("step failed",
			zap.String("step", step.name),
			zap.Int("attempts", step.Attempts()),
			zap.Error(err),
		)
	case step.Skipped():
		w.logger.Debug("step skipped by condition", zap.String("step", step.name))
	default:
		w.logger.Debug("step completed",
			zap.String("step", step.name),
			zap.Int("attempts", step.Attempts()),
			zap.Duration("duration", step.Duration()),
		)
	}

	w.observer.OnStepEnd(ctx, w, step, err)
	return err
}

func (w *Workflow) stepRetried(ctx context.Context, step *WorkflowStep, attempt int, wait time.Duration, err error) {
	w.logger.Warn("step attempt failed, retrying",
		zap.String("step", step.name),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", step.retry.MaxAttempts),
		zap.Duration("backoff", wait),
		zap.Error(err),
	)
	trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("error", err.Error()),
	))
	w.observer.OnStepRetry(ctx, w, step, attempt, wait, err)
}

func (w *Workflow) checkCancelled(ctx context.Context) error {
	if w.cancelled.Load() {
		return ErrWorkflowCancelled
	}
	return ctx.Err()
}

// depsSatisfied reports whether every dependency of s is in done.
func (w *Workflow) depsSatisfied(s *WorkflowStep, done map[string]bool) bool {
	for _, dep := range s.dependsOn {
		if !done[dep] {
			return false
		}
	}
	return true
}

func (w *Workflow) circularError(remaining []*WorkflowStep) error {
	names := make([]string, 0, len(remaining))
	for _, s := range remaining {
		names = append(names, s.name)
	}
	return &CircularDependencyError{Workflow: w.name, Remaining: names}
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Description returns the workflow description.
func (w *Workflow) Description() string { return w.description }

// Type returns the scheduling strategy.
func (w *Workflow) Type() Type { return w.typ }

// MaxConcurrency returns the per-round cap used by TypeParallel.
func (w *Workflow) MaxConcurrency() int { return w.maxConcurrency }

// Timeout returns the configured timeout. It is recorded for callers but the
// engine does not enforce it; bound the context passed to Execute instead.
func (w *Workflow) Timeout() time.Duration { return w.timeout }

// MaxIterations returns the pass cap used by TypeIterative.
func (w *Workflow) MaxIterations() int { return w.maxIterations }

// ExecutionContext returns the context forwarded to agents.
func (w *Workflow) ExecutionContext() *ExecutionContext { return w.execCtx }

// Memory returns the live shared memory.
func (w *Workflow) Memory() *Memory { return w.memory }

// Steps returns the steps in declaration order.
func (w *Workflow) Steps() []*WorkflowStep {
	steps := make([]*WorkflowStep, len(w.steps))
	copy(steps, w.steps)
	return steps
}

// Step looks up a step by name.
func (w *Workflow) Step(name string) (*WorkflowStep, bool) {
	s, ok := w.index[name]
	return s, ok
}

// Status returns the workflow status.
func (w *Workflow) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// RunID returns the identifier assigned when Execute started.
func (w *Workflow) RunID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runID
}

// StartTime returns when Execute started.
func (w *Workflow) StartTime() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.startTime
}

// EndTime returns when Execute returned.
func (w *Workflow) EndTime() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.endTime
}

// Duration returns the run duration, or 0 before the run ends.
func (w *Workflow) Duration() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.startTime.IsZero() || w.endTime.IsZero() {
		return 0
	}
	return w.endTime.Sub(w.startTime)
}

// Rounds returns how many scheduling rounds ran: dispatches for sequential,
// conditional and dynamic, batches for parallel, passes for iterative.
func (w *Workflow) Rounds() int { return int(w.rounds.Load()) }

func newTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
