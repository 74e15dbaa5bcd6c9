package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Test agents
// ---------------------------------------------------------------------------

var errBoom = errors.New("boom")

// scriptedAgent fails its first `failures` calls, then returns result.
// A negative failures value fails forever.
type scriptedAgent struct {
	name     string
	result   any
	failures int
	err      error
	delay    time.Duration
	onCall   func(task *Task)

	calls    atomic.Int32
	mu       sync.Mutex
	lastTask *Task
	lastEC   *ExecutionContext
}

func newAgent(name string, result any) *scriptedAgent {
	return &scriptedAgent{name: name, result: result}
}

func (a *scriptedAgent) Name() string { return a.name }

func (a *scriptedAgent) Execute(ctx context.Context, task *Task, ec *ExecutionContext) (any, error) {
	n := int(a.calls.Add(1))

	a.mu.Lock()
	a.lastTask = task.Clone()
	a.lastEC = ec
	a.mu.Unlock()

	if a.onCall != nil {
		a.onCall(task)
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.failures < 0 || n <= a.failures {
		if a.err != nil {
			return nil, a.err
		}
		return nil, errBoom
	}
	return a.result, nil
}

func (a *scriptedAgent) Calls() int { return int(a.calls.Load()) }

func (a *scriptedAgent) LastTask() *Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastTask
}

// orderLog records the order in which steps were invoked.
type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (l *orderLog) agent(result any) Agent {
	return AgentFunc(func(_ context.Context, task *Task, _ *ExecutionContext) (any, error) {
		l.mu.Lock()
		l.names = append(l.names, task.StepName())
		l.mu.Unlock()
		if result == nil {
			return task.StepName() + "_result", nil
		}
		return result, nil
	})
}

func (l *orderLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// fastRetry keeps retry tests quick.
func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Delay: time.Millisecond, BackoffFactor: 1}
}

// recordingObserver counts lifecycle callbacks.
type recordingObserver struct {
	mu          sync.Mutex
	starts      int
	ends        int
	stepStarts  []string
	stepEnds    []string
	retries     []int
	workflowErr error
}

func (o *recordingObserver) OnWorkflowStart(context.Context, *Workflow) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
}

func (o *recordingObserver) OnWorkflowEnd(_ context.Context, _ *Workflow, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ends++
	o.workflowErr = err
}

func (o *recordingObserver) OnStepStart(_ context.Context, _ *Workflow, step *WorkflowStep) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts = append(o.stepStarts, step.Name())
}

func (o *recordingObserver) OnStepRetry(_ context.Context, _ *Workflow, _ *WorkflowStep, attempt int, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, attempt)
}

func (o *recordingObserver) OnStepEnd(_ context.Context, _ *Workflow, step *WorkflowStep, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepEnds = append(o.stepEnds, step.Name())
}
