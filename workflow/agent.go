package workflow

import (
	"context"
	"maps"
	"time"
)

// ============================================================
// Executor contract consumed by the engine
// ============================================================

// Agent is anything that can carry out a Task. Implementations may block on
// network I/O and signal failure by returning an error; the engine retries
// according to the owning step's RetryPolicy.
type Agent interface {
	Execute(ctx context.Context, task *Task, ec *ExecutionContext) (any, error)
}

// AgentFunc adapts a plain function to Agent.
type AgentFunc func(ctx context.Context, task *Task, ec *ExecutionContext) (any, error)

func (f AgentFunc) Execute(ctx context.Context, task *Task, ec *ExecutionContext) (any, error) {
	return f(ctx, task, ec)
}

// Named is optionally implemented by agents that expose a display name, used
// for log fields and metric labels.
type Named interface {
	Name() string
}

// AgentName returns the agent's name when it implements Named, or "anonymous".
func AgentName(a Agent) string {
	if n, ok := a.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return "anonymous"
}

// Parameter keys the engine writes into Task.Parameters before every call.
const (
	ParamWorkflowMemory = "workflow_memory"
	ParamStepName       = "step_name"
)

// Task is the payload handed to an agent.
type Task struct {
	ID          string         `json:"id" yaml:"id"`
	Type        string         `json:"type,omitempty" yaml:"type,omitempty"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewTask creates a task with an empty parameter map.
func NewTask(id, description string) *Task {
	return &Task{
		ID:          id,
		Description: description,
		Parameters:  make(map[string]any),
	}
}

// Clone returns a copy whose maps can be mutated independently.
func (t *Task) Clone() *Task {
	if t == nil {
		return NewTask("", "")
	}
	c := *t
	c.Parameters = maps.Clone(t.Parameters)
	if c.Parameters == nil {
		c.Parameters = make(map[string]any)
	}
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

// Param returns a parameter value.
func (t *Task) Param(key string) (any, bool) {
	v, ok := t.Parameters[key]
	return v, ok
}

// WorkflowMemory returns the memory snapshot injected by the engine.
func (t *Task) WorkflowMemory() map[string]any {
	m, _ := t.Parameters[ParamWorkflowMemory].(map[string]any)
	return m
}

// StepName returns the name of the step the task is executing under.
func (t *Task) StepName() string {
	s, _ := t.Parameters[ParamStepName].(string)
	return s
}

// ExecutionContext is forwarded untouched to every agent call of a workflow.
// The engine never reads or mutates it.
type ExecutionContext struct {
	// ID identifies the caller's session or request
	ID string `json:"id,omitempty"`
	// Variables carries caller supplied values
	Variables map[string]any `json:"variables,omitempty"`
	// CreatedAt is when the context was created
	CreatedAt time.Time `json:"created_at"`
}

// NewExecutionContext creates an execution context.
func NewExecutionContext(id string) *ExecutionContext {
	return &ExecutionContext{
		ID:        id,
		Variables: make(map[string]any),
		CreatedAt: time.Now(),
	}
}

// GetVariable retrieves a caller variable.
func (ec *ExecutionContext) GetVariable(key string) (any, bool) {
	if ec == nil {
		return nil, false
	}
	v, ok := ec.Variables[key]
	return v, ok
}
