package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/crewflow/workflow"
)

// ============================================================
// Lightweight agents
// ============================================================

type named struct {
	workflow.Agent
	name string
}

func (n named) Name() string { return n.name }

// WithName attaches a display name to an agent.
func WithName(name string, agent workflow.Agent) workflow.Agent {
	return named{Agent: agent, name: name}
}

// Func turns a function into a named agent.
func Func(name string, fn func(ctx context.Context, task *workflow.Task, ec *workflow.ExecutionContext) (any, error)) workflow.Agent {
	return WithName(name, workflow.AgentFunc(fn))
}

// Static always returns value.
func Static(name string, value any) workflow.Agent {
	return Func(name, func(ctx context.Context, _ *workflow.Task, _ *workflow.ExecutionContext) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return value, nil
	})
}

// Echo returns the task description, the step name and the caller supplied
// parameters, plus the run ID when called from a workflow. The injected
// workflow memory is left out.
func Echo(name string) workflow.Agent {
	return Func(name, func(ctx context.Context, task *workflow.Task, _ *workflow.ExecutionContext) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		params := make(map[string]any, len(task.Parameters))
		for k, v := range task.Parameters {
			if k == workflow.ParamWorkflowMemory || k == workflow.ParamStepName {
				continue
			}
			params[k] = v
		}
		out := map[string]any{
			"description": task.Description,
			"step":        task.StepName(),
			"params":      params,
		}
		if runID, ok := workflow.RunIDFromContext(ctx); ok {
			out["run_id"] = runID
		}
		return out, nil
	})
}

// ParamCapabilities 是 Planner 读取的任务参数
const ParamCapabilities = "required_capabilities"

// Planner returns {"required_capabilities": [...]} read from the task's
// required_capabilities parameter ([]string, []any or a comma separated
// string). When the parameter is absent the fallback list is used.
func Planner(name string, fallback ...string) workflow.Agent {
	return Func(name, func(ctx context.Context, task *workflow.Task, _ *workflow.ExecutionContext) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		caps := fallback
		if v, ok := task.Param(ParamCapabilities); ok {
			parsed, err := parseCapabilities(v)
			if err != nil {
				return nil, err
			}
			caps = parsed
		}
		return map[string]any{
			ParamCapabilities: append([]string{}, caps...),
		}, nil
	})
}

func parseCapabilities(v any) ([]string, error) {
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected strings, got %T", ParamCapabilities, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		for _, part := range strings.Split(vals, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", ParamCapabilities, v)
	}
}
