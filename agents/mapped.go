package agents

import (
	"context"
	"fmt"

	"github.com/BaSui01/crewflow/workflow"
)

// Mapped wraps an agent with task and result transformations.
type Mapped struct {
	agent        workflow.Agent
	name         string
	inputMapper  func(*workflow.Task) (*workflow.Task, error)
	outputMapper func(any) (any, error)
}

// MappedOption configures a Mapped agent.
type MappedOption func(*Mapped)

// WithInputMapper sets a function to transform the task before the call.
func WithInputMapper(mapper func(*workflow.Task) (*workflow.Task, error)) MappedOption {
	return func(m *Mapped) {
		m.inputMapper = mapper
	}
}

// WithOutputMapper sets a function to transform the result after the call.
func WithOutputMapper(mapper func(any) (any, error)) MappedOption {
	return func(m *Mapped) {
		m.outputMapper = mapper
	}
}

// WithMappedName sets a custom name.
func WithMappedName(name string) MappedOption {
	return func(m *Mapped) {
		m.name = name
	}
}

// NewMapped creates a Mapped agent. The default name is "mapped:<inner name>".
func NewMapped(agent workflow.Agent, opts ...MappedOption) *Mapped {
	m := &Mapped{
		agent: agent,
		name:  fmt.Sprintf("mapped:%s", workflow.AgentName(agent)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Execute implements workflow.Agent.
func (m *Mapped) Execute(ctx context.Context, task *workflow.Task, ec *workflow.ExecutionContext) (any, error) {
	if m.inputMapper != nil {
		mapped, err := m.inputMapper(task)
		if err != nil {
			return nil, fmt.Errorf("input mapping failed: %w", err)
		}
		task = mapped
	}

	output, err := m.agent.Execute(ctx, task, ec)
	if err != nil {
		// agent 错误原样返回，调用方可按原始错误判断
		return nil, err
	}

	if m.outputMapper != nil {
		output, err = m.outputMapper(output)
		if err != nil {
			return nil, fmt.Errorf("output mapping failed: %w", err)
		}
	}
	return output, nil
}

// Name implements workflow.Named.
func (m *Mapped) Name() string { return m.name }
