package dsl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/BaSui01/crewflow/workflow"
)

// Validator DSL 验证器，一次性报告全部问题
type Validator struct {
	conditions map[string]bool
}

// NewValidator 创建验证器。namedConditions 为已注册的命名条件，
// 这些条件不按表达式语法校验。
func NewValidator(namedConditions ...string) *Validator {
	v := &Validator{conditions: make(map[string]bool, len(namedConditions))}
	for _, name := range namedConditions {
		v.conditions[name] = true
	}
	return v
}

// Validate 验证工作流定义
func (v *Validator) Validate(def *WorkflowDef) []error {
	var errs []error

	// 基础字段验证
	if def.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	typ, err := workflow.ParseType(def.Type)
	if err != nil {
		errs = append(errs, fmt.Errorf("type: %w", err))
	}
	if def.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be >= 0, got %d", def.MaxConcurrency))
	}
	if def.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be >= 0, got %d", def.MaxIterations))
	}
	if def.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0, got %v", def.Timeout))
	}
	if len(def.Steps) == 0 {
		errs = append(errs, fmt.Errorf("steps must have at least one step"))
	}
	if def.Defaults != nil && def.Defaults.Retry != nil {
		errs = append(errs, validateRetry("defaults", def.Defaults.Retry)...)
	}

	// 收集所有步骤名
	names := make(map[string]bool, len(def.Steps))
	for i, step := range def.Steps {
		if step.Name == "" {
			errs = append(errs, fmt.Errorf("steps[%d]: name is required", i))
			continue
		}
		if step.Name == varsKey {
			errs = append(errs, fmt.Errorf("steps[%d]: step name %q is reserved for workflow variables", i, varsKey))
		}
		if names[step.Name] {
			errs = append(errs, fmt.Errorf("duplicate step name: %s", step.Name))
		}
		names[step.Name] = true
	}

	// 验证每个步骤
	for i := range def.Steps {
		errs = append(errs, v.validateStep(&def.Steps[i], def, names)...)
	}

	// 只有会在运行期报环的策略才需要提前检测
	if err == nil && len(errs) == 0 {
		switch typ {
		case workflow.TypeSequential, workflow.TypeParallel, workflow.TypeConditional:
			if cycle := findCycle(def.Steps); len(cycle) > 0 {
				errs = append(errs, fmt.Errorf("circular dependency: %s", strings.Join(cycle, " -> ")))
			}
		}
	}

	return errs
}

// validateStep 验证单个步骤
func (v *Validator) validateStep(step *StepDef, def *WorkflowDef, names map[string]bool) []error {
	var errs []error
	label := step.Name
	if label == "" {
		label = "<unnamed>"
	}

	if step.Agent == "" {
		errs = append(errs, fmt.Errorf("step %s: agent is required", label))
	}

	for _, dep := range step.DependsOn {
		if !names[dep] {
			errs = append(errs, fmt.Errorf("step %s: depends_on %q does not exist", label, dep))
		}
	}

	if step.Condition != "" && !v.conditions[step.Condition] {
		expr, err := CompileExpression(step.Condition)
		if err != nil {
			errs = append(errs, fmt.Errorf("step %s: condition: %w", label, err))
		} else {
			for _, path := range expr.Paths() {
				root, rest, _ := strings.Cut(path, ".")
				if root == varsKey {
					if _, ok := def.Variables[strings.SplitN(rest, ".", 2)[0]]; !ok {
						errs = append(errs, fmt.Errorf("step %s: condition references undefined variable %q", label, rest))
					}
				}
			}
		}
	}

	if step.Retry != nil {
		errs = append(errs, validateRetry("step "+label, step.Retry)...)
	}

	// 验证变量插值引用
	for _, ref := range taskVariableRefs(&step.Task) {
		if _, ok := def.Variables[ref]; !ok {
			errs = append(errs, fmt.Errorf("step %s: variable %q referenced in task not defined", label, ref))
		}
	}

	return errs
}

func validateRetry(label string, r *RetryDef) []error {
	var errs []error
	if r.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("%s: retry.max_attempts must be >= 1, got %d", label, r.MaxAttempts))
	}
	if r.Delay != nil && *r.Delay < 0 {
		errs = append(errs, fmt.Errorf("%s: retry.delay must be >= 0, got %v", label, *r.Delay))
	}
	if r.BackoffFactor != 0 && r.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("%s: retry.backoff_factor must be >= 1, got %v", label, r.BackoffFactor))
	}
	return errs
}

// findCycle returns one dependency cycle as a closed path of step names, or nil.
func findCycle(steps []StepDef) []string {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.Name] = s.DependsOn
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(steps))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range deps[name] {
			switch state[dep] {
			case visiting:
				start := slices.Index(stack, dep)
				return append(slices.Clone(stack[start:]), dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, s := range steps {
		if state[s.Name] == unvisited {
			if cycle := visit(s.Name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// taskVariableRefs 收集任务描述与字符串参数中的 ${var} 引用
func taskVariableRefs(task *TaskDef) []string {
	refs := extractVariableRefs(task.Description)
	for _, v := range task.Parameters {
		if s, ok := v.(string); ok {
			refs = append(refs, extractVariableRefs(s)...)
		}
	}
	return refs
}

// extractVariableRefs 提取 ${var} 引用
func extractVariableRefs(s string) []string {
	var refs []string
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		refs = append(refs, s[start+2:start+end])
		s = s[start+end+1:]
	}
	return refs
}
