package workflow

import (
	"errors"
	"fmt"
	"slices"
)

// ============================================================
// Pre-built topologies
// ============================================================

// Step names used by NewSpecialistWorkflow.
const (
	PlanningStep    = "planning"
	IntegrationStep = "integration"
)

// BuilderOption customizes the builder a factory helper assembles, e.g. to
// attach a logger or observers.
type BuilderOption func(*WorkflowBuilder)

// NewSequentialWorkflow runs every task on the same agent as a chain:
// step_i depends on step_{i-1}.
func NewSequentialWorkflow(name string, agent Agent, tasks []*Task, ec *ExecutionContext, opts ...BuilderOption) (*Workflow, error) {
	b := NewWorkflowBuilder(name, TypeSequential).
		WithDescription(fmt.Sprintf("sequential chain of %d tasks", len(tasks)))

	for i, task := range tasks {
		var stepOpts []StepOption
		if i > 0 {
			stepOpts = append(stepOpts, DependsOn(fmt.Sprintf("step_%d", i-1)))
		}
		b.AddStep(agent, task, fmt.Sprintf("step_%d", i), stepOpts...)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b.Build(ec)
}

// NewParallelProcessingWorkflow spreads tasks round-robin over agents with no
// dependencies between them and runs them as a parallel workflow.
func NewParallelProcessingWorkflow(name string, agents []Agent, tasks []*Task, maxConcurrency int, ec *ExecutionContext, opts ...BuilderOption) (*Workflow, error) {
	if len(agents) == 0 {
		return nil, errors.New("parallel processing workflow needs at least one agent")
	}

	b := NewWorkflowBuilder(name, TypeParallel).
		WithDescription(fmt.Sprintf("%d tasks across %d agents", len(tasks), len(agents))).
		SetMaxConcurrency(maxConcurrency)

	for i, task := range tasks {
		b.AddStep(agents[i%len(agents)], task, fmt.Sprintf("task_%d", i))
	}
	for _, opt := range opts {
		opt(b)
	}
	return b.Build(ec)
}

// Specialist pairs a capability with the agent that provides it.
type Specialist struct {
	Capability string
	Agent      Agent
}

// SpecialistStepName returns the step name used for a capability.
func SpecialistStepName(capability string) string {
	return capability + "_specialist"
}

// NewSpecialistWorkflow builds a dynamic coordinator/specialist/integrator
// workflow. The coordinator runs first as "planning"; each specialist step
// runs only if its capability appears in the planning result's
// required_capabilities (see RequiredCapabilities); "integration" runs last.
func NewSpecialistWorkflow(name string, coordinator Agent, specialists []Specialist, integrator Agent, task *Task, ec *ExecutionContext, opts ...BuilderOption) (*Workflow, error) {
	b := NewWorkflowBuilder(name, TypeDynamic).
		WithDescription(fmt.Sprintf("coordinator with %d specialists", len(specialists)))

	b.AddStep(coordinator, task, PlanningStep)

	specialistSteps := make([]string, 0, len(specialists))
	for _, sp := range specialists {
		stepName := SpecialistStepName(sp.Capability)
		b.AddStep(sp.Agent, task, stepName,
			DependsOn(PlanningStep),
			When(capabilityRequired(sp.Capability)),
		)
		specialistSteps = append(specialistSteps, stepName)
	}

	b.AddStep(integrator, task, IntegrationStep, DependsOn(specialistSteps...))
	for _, opt := range opts {
		opt(b)
	}
	return b.Build(ec)
}

func capabilityRequired(capability string) ConditionFunc {
	return func(memory map[string]any) (bool, error) {
		return slices.Contains(RequiredCapabilities(memory[PlanningStep]), capability), nil
	}
}

// PlanningResult is the typed form of a coordinator's output.
type PlanningResult struct {
	RequiredCapabilities []string       `json:"required_capabilities" yaml:"required_capabilities"`
	Notes                string         `json:"notes,omitempty" yaml:"notes,omitempty"`
	Extra                map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// RequiredCapabilities extracts the capability list from a planning result.
// It accepts PlanningResult (value or pointer) and maps with a
// "required_capabilities" entry holding []string or []any of strings.
// Anything else yields nil.
func RequiredCapabilities(planning any) []string {
	switch p := planning.(type) {
	case PlanningResult:
		return p.RequiredCapabilities
	case *PlanningResult:
		if p == nil {
			return nil
		}
		return p.RequiredCapabilities
	case map[string]any:
		return toStrings(p["required_capabilities"])
	case map[string][]string:
		return p["required_capabilities"]
	default:
		return nil
	}
}

func toStrings(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
