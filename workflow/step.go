package workflow

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ConditionFunc decides from the current workflow memory whether a step runs.
// A false result skips the step without calling its agent.
type ConditionFunc func(memory map[string]any) (bool, error)

// retryHook is installed by the owning Workflow to forward retries to observers.
type retryHook func(ctx context.Context, step *WorkflowStep, attempt int, wait time.Duration, err error)

// WorkflowStep binds one agent and one task to a name inside a workflow and
// owns the retry and skip behaviour for that pair.
type WorkflowStep struct {
	name      string
	agent     Agent
	task      *Task
	dependsOn []string
	condition ConditionFunc
	retry     RetryPolicy
	onRetry   retryHook

	mu        sync.RWMutex
	status    Status
	result    any
	err       error
	attempts  int
	runs      int
	skipped   bool
	startTime time.Time
	endTime   time.Time
}

// StepOption configures a WorkflowStep.
type StepOption func(*WorkflowStep)

// DependsOn declares steps that must finish before this one becomes ready.
// Duplicates are ignored; declaration order is kept.
func DependsOn(names ...string) StepOption {
	return func(s *WorkflowStep) {
		for _, n := range names {
			if !slices.Contains(s.dependsOn, n) {
				s.dependsOn = append(s.dependsOn, n)
			}
		}
	}
}

// When gates the step on a condition over workflow memory.
func When(cond ConditionFunc) StepOption {
	return func(s *WorkflowStep) {
		s.condition = cond
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy for the step.
func WithRetryPolicy(p RetryPolicy) StepOption {
	return func(s *WorkflowStep) {
		s.retry = p
	}
}

// NewWorkflowStep creates a pending step. The task is copied so the engine's
// parameter injection never leaks into the caller's value.
func NewWorkflowStep(name string, agent Agent, task *Task, opts ...StepOption) *WorkflowStep {
	s := &WorkflowStep{
		name:   name,
		agent:  agent,
		task:   task.Clone(),
		retry:  DefaultRetryPolicy(),
		status: StatusPending,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs the step against the given memory.
//
// A false condition records a nil result and completes without calling the
// agent. Otherwise the agent is invoked until it succeeds or MaxAttempts is
// reached, sleeping Backoff(n) after the n-th failure. The last agent error is
// returned as-is.
func (s *WorkflowStep) Execute(ctx context.Context, ec *ExecutionContext, memory *Memory) (any, error) {
	s.begin()
	defer s.finish()

	if s.condition != nil {
		ok, err := s.condition(memory.Snapshot())
		if err != nil {
			err = fmt.Errorf("step %q condition: %w", s.name, err)
			s.fail(err)
			return nil, err
		}
		if !ok {
			memory.Set(s.name, nil)
			s.skip()
			return nil, nil
		}
	}

	for {
		s.task.Parameters[ParamWorkflowMemory] = memory.Snapshot()
		s.task.Parameters[ParamStepName] = s.name

		attempt := s.nextAttempt()
		result, err := s.agent.Execute(ctx, s.task, ec)
		if err == nil {
			memory.Set(s.name, result)
			s.complete(result)
			return result, nil
		}

		if attempt >= s.retry.MaxAttempts {
			s.fail(err)
			return nil, err
		}

		wait := s.retry.Backoff(attempt)
		if s.onRetry != nil {
			s.onRetry(ctx, s, attempt, wait, err)
		}
		if werr := sleepContext(ctx, wait); werr != nil {
			s.cancelWith(werr)
			return nil, werr
		}
	}
}

// Cancel marks a pending or running step as cancelled. A running agent call
// is not interrupted; its result is still written to memory.
func (s *WorkflowStep) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusPending || s.status == StatusRunning {
		s.status = StatusCancelled
		return true
	}
	return false
}

func (s *WorkflowStep) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}
	s.attempts = 0
	s.skipped = false
	s.err = nil
	if s.status != StatusCancelled {
		s.status = StatusRunning
	}
}

func (s *WorkflowStep) finish() {
	s.mu.Lock()
	s.endTime = time.Now()
	s.mu.Unlock()
}

func (s *WorkflowStep) nextAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *WorkflowStep) complete(result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
	s.runs++
	if s.status != StatusCancelled {
		s.status = StatusCompleted
	}
}

func (s *WorkflowStep) skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = nil
	s.skipped = true
	s.runs++
	if s.status != StatusCancelled {
		s.status = StatusCompleted
	}
}

func (s *WorkflowStep) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	if s.status != StatusCancelled {
		s.status = StatusFailed
	}
}

func (s *WorkflowStep) cancelWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.status = StatusCancelled
}

// Name returns the step name.
func (s *WorkflowStep) Name() string { return s.name }

// Agent returns the executor bound to the step.
func (s *WorkflowStep) Agent() Agent { return s.agent }

// Task returns the step's own task copy.
func (s *WorkflowStep) Task() *Task { return s.task }

// RetryPolicy returns the step's retry policy.
func (s *WorkflowStep) RetryPolicy() RetryPolicy { return s.retry }

// HasCondition reports whether the step is gated.
func (s *WorkflowStep) HasCondition() bool { return s.condition != nil }

// DependsOn returns a copy of the dependency names.
func (s *WorkflowStep) DependsOn() []string {
	deps := make([]string, len(s.dependsOn))
	copy(deps, s.dependsOn)
	return deps
}

// Status returns the current status.
func (s *WorkflowStep) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Result returns the latest result, nil when skipped or not yet run.
func (s *WorkflowStep) Result() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Err returns the error that failed the step.
func (s *WorkflowStep) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Attempts returns how many times the agent was called during the latest Execute.
func (s *WorkflowStep) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// Runs returns how many Execute calls completed (successfully or skipped).
func (s *WorkflowStep) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}

// Skipped reports whether the latest Execute was skipped by its condition.
func (s *WorkflowStep) Skipped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}

// StartTime returns when the step first started; zero if never.
func (s *WorkflowStep) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// EndTime returns when the latest Execute returned; zero if never.
func (s *WorkflowStep) EndTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endTime
}

// Duration returns EndTime - StartTime, or 0 while unfinished.
func (s *WorkflowStep) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() || s.endTime.IsZero() {
		return 0
	}
	return s.endTime.Sub(s.startTime)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
