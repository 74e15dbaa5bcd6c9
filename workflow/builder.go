package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxConcurrency is the per-round cap for parallel workflows when the
// builder is not told otherwise.
const DefaultMaxConcurrency = 5

type stepSpec struct {
	name  string
	agent Agent
	task  *Task
	opts  []StepOption
}

// WorkflowBuilder provides a fluent API for assembling a Workflow. Steps keep
// the order in which they were added.
type WorkflowBuilder struct {
	name           string
	description    string
	typ            Type
	steps          []stepSpec
	maxConcurrency int
	timeout        time.Duration
	maxIterations  int
	selector       StepSelector
	observers      []Observer
	logger         *zap.Logger
}

// NewWorkflowBuilder creates a builder for a workflow of the given type.
func NewWorkflowBuilder(name string, typ Type) *WorkflowBuilder {
	return &WorkflowBuilder{
		name:           name,
		typ:            typ,
		maxConcurrency: DefaultMaxConcurrency,
		maxIterations:  DefaultMaxIterations,
		selector:       FirstReady,
	}
}

// WithDescription sets the workflow description.
func (b *WorkflowBuilder) WithDescription(desc string) *WorkflowBuilder {
	b.description = desc
	return b
}

// AddStep appends a step. The task is copied when the workflow is built.
func (b *WorkflowBuilder) AddStep(agent Agent, task *Task, name string, opts ...StepOption) *WorkflowBuilder {
	b.steps = append(b.steps, stepSpec{name: name, agent: agent, task: task, opts: opts})
	return b
}

// SetMaxConcurrency caps how many steps a parallel round dispatches.
func (b *WorkflowBuilder) SetMaxConcurrency(n int) *WorkflowBuilder {
	b.maxConcurrency = n
	return b
}

// SetTimeout records a timeout on the workflow. The engine does not enforce
// it; callers bound the context passed to Execute.
func (b *WorkflowBuilder) SetTimeout(d time.Duration) *WorkflowBuilder {
	b.timeout = d
	return b
}

// WithMaxIterations overrides DefaultMaxIterations for iterative workflows.
func (b *WorkflowBuilder) WithMaxIterations(n int) *WorkflowBuilder {
	b.maxIterations = n
	return b
}

// WithSelector replaces FirstReady for dynamic workflows.
func (b *WorkflowBuilder) WithSelector(s StepSelector) *WorkflowBuilder {
	b.selector = s
	return b
}

// WithObserver registers lifecycle observers, called in registration order.
func (b *WorkflowBuilder) WithObserver(obs ...Observer) *WorkflowBuilder {
	b.observers = append(b.observers, obs...)
	return b
}

// WithLogger sets a custom logger
func (b *WorkflowBuilder) WithLogger(logger *zap.Logger) *WorkflowBuilder {
	b.logger = logger
	return b
}

// Build validates the accumulated steps and creates the workflow. ec is
// forwarded to every agent call; nil gets a fresh ExecutionContext.
//
// Dependency names must all resolve. Cycles are not checked here; the
// sequential, parallel and conditional strategies report them when run.
func (b *WorkflowBuilder) Build(ec *ExecutionContext) (*Workflow, error) {
	typ, err := ParseType(string(b.typ))
	if err != nil {
		return nil, fmt.Errorf("build workflow %q: %w", b.name, err)
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("build workflow %q: %w", b.name, err)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if ec == nil {
		ec = NewExecutionContext(uuid.NewString())
	}
	selector := b.selector
	if selector == nil {
		selector = FirstReady
	}

	w := &Workflow{
		name:           b.name,
		description:    b.description,
		typ:            typ,
		steps:          make([]*WorkflowStep, 0, len(b.steps)),
		index:          make(map[string]*WorkflowStep, len(b.steps)),
		memory:         NewMemory(),
		maxConcurrency: b.maxConcurrency,
		timeout:        b.timeout,
		maxIterations:  b.maxIterations,
		selector:       selector,
		execCtx:        ec,
		observer:       multiObserver(append([]Observer(nil), b.observers...)),
		logger: logger.With(
			zap.String("component", "workflow"),
			zap.String("workflow", b.name),
		),
		tracer: newTracer(),
		status: StatusPending,
	}

	for _, def := range b.steps {
		step := NewWorkflowStep(def.name, def.agent, def.task, def.opts...)
		step.onRetry = w.stepRetried
		w.steps = append(w.steps, step)
		w.index[step.name] = step
	}

	// 依赖存在性校验需要完整的步骤表
	for _, step := range w.steps {
		if err := step.retry.Validate(); err != nil {
			return nil, fmt.Errorf("build workflow %q: step %q: %w", b.name, step.name, err)
		}
		for _, dep := range step.dependsOn {
			if _, ok := w.index[dep]; !ok {
				return nil, fmt.Errorf("build workflow %q: %w", b.name,
					&MissingDependencyError{Step: step.name, Dependency: dep})
			}
		}
	}

	w.logger.Debug("workflow built",
		zap.String("type", string(typ)),
		zap.Int("steps", len(w.steps)),
	)
	return w, nil
}

func (b *WorkflowBuilder) validate() error {
	if b.maxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be >= 1, got %d", b.maxConcurrency)
	}
	if b.maxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", b.maxIterations)
	}
	if b.timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", b.timeout)
	}

	seen := make(map[string]bool, len(b.steps))
	for i, def := range b.steps {
		if def.name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if seen[def.name] {
			return fmt.Errorf("%w: %q", ErrDuplicateStep, def.name)
		}
		seen[def.name] = true
		if def.agent == nil {
			return fmt.Errorf("step %q has no agent", def.name)
		}
	}
	return nil
}
