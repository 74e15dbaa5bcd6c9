package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"github.com/BaSui01/crewflow/workflow"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// varsKey 条件表达式中访问工作流变量的根名，不能用作步骤名
const varsKey = "vars"

// AgentResolver 按名称查找 Agent
type AgentResolver interface {
	Resolve(name string) (workflow.Agent, bool)
}

// AgentResolverFunc 函数形式的 AgentResolver
type AgentResolverFunc func(name string) (workflow.Agent, bool)

func (f AgentResolverFunc) Resolve(name string) (workflow.Agent, bool) { return f(name) }

// ValidationError 汇总 DSL 的全部校验错误
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation errors: %s", strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Errors }

// Parser DSL 解析器
type Parser struct {
	resolver AgentResolver
	// conditionRegistry 命名条件注册表
	conditionRegistry map[string]workflow.ConditionFunc
	defaults          Defaults
	logger            *zap.Logger
}

// Defaults 定义未设置对应字段时使用的值，通常来自 config.WorkflowConfig。
// 零值字段不生效。
type Defaults struct {
	MaxConcurrency int
	MaxIterations  int
	Retry          workflow.RetryPolicy
}

// ParserOption 配置 Parser
type ParserOption func(*Parser)

// WithLogger 设置解析器以及生成的工作流使用的 logger
func WithLogger(logger *zap.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDefaults 设置工作流级默认值
func WithDefaults(d Defaults) ParserOption {
	return func(p *Parser) {
		p.defaults = d
	}
}

// NewParser 创建 DSL 解析器
func NewParser(resolver AgentResolver, opts ...ParserOption) *Parser {
	p := &Parser{
		resolver:          resolver,
		conditionRegistry: make(map[string]workflow.ConditionFunc),
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterCondition 注册命名条件，步骤的 condition 字段可直接引用该名称
func (p *Parser) RegisterCondition(name string, fn workflow.ConditionFunc) {
	p.conditionRegistry[name] = fn
}

// ParseFile 从文件解析 DSL
func (p *Parser) ParseFile(filename string) (*workflow.WorkflowBuilder, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read DSL file: %w", err)
	}
	return p.Parse(data)
}

// Parse 从 YAML 字节解析 DSL 并编译为 WorkflowBuilder
func (p *Parser) Parse(data []byte) (*workflow.WorkflowBuilder, error) {
	def, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return p.Compile(def)
}

// Decode 严格解码 YAML，未知字段视为错误
func Decode(data []byte) (*WorkflowDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def WorkflowDef
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse YAML: empty workflow definition")
		}
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &def, nil
}

// Validate 校验定义并检查所有 agent 都可解析
func (p *Parser) Validate(def *WorkflowDef) error {
	errs := NewValidator(p.conditionNames()...).Validate(def)
	if p.resolver != nil {
		for _, step := range def.Steps {
			if step.Agent == "" {
				continue
			}
			if _, ok := p.resolver.Resolve(step.Agent); !ok {
				errs = append(errs, fmt.Errorf("step %s: agent %q not found", step.Name, step.Agent))
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Compile 将定义编译为 WorkflowBuilder，调用方可继续追加 observer 等配置
func (p *Parser) Compile(def *WorkflowDef) (*workflow.WorkflowBuilder, error) {
	if p.resolver == nil {
		return nil, fmt.Errorf("compile workflow %q: no agent resolver configured", def.Name)
	}
	if err := p.Validate(def); err != nil {
		return nil, fmt.Errorf("validate DSL: %w", err)
	}

	typ, _ := workflow.ParseType(def.Type)
	b := workflow.NewWorkflowBuilder(def.Name, typ).
		WithDescription(def.Description).
		SetTimeout(def.Timeout).
		WithLogger(p.logger)
	if n := firstPositive(def.MaxConcurrency, p.defaults.MaxConcurrency); n > 0 {
		b.SetMaxConcurrency(n)
	}
	if n := firstPositive(def.MaxIterations, p.defaults.MaxIterations); n > 0 {
		b.WithMaxIterations(n)
	}

	base := workflow.DefaultRetryPolicy()
	if p.defaults.Retry.MaxAttempts > 0 {
		base = p.defaults.Retry
	}
	if def.Defaults != nil && def.Defaults.Retry != nil {
		base = mergeRetry(base, def.Defaults.Retry)
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		agent, _ := p.resolver.Resolve(step.Agent)

		opts := []workflow.StepOption{
			workflow.DependsOn(step.DependsOn...),
			workflow.WithRetryPolicy(mergeRetry(base, step.Retry)),
		}
		if step.Condition != "" {
			cond, err := p.resolveCondition(step.Condition, def.Variables)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", step.Name, err)
			}
			opts = append(opts, workflow.When(cond))
		}

		b.AddStep(agent, buildTask(step, def.Variables), step.Name, opts...)
	}

	p.logger.Debug("workflow definition compiled",
		zap.String("workflow", def.Name),
		zap.String("type", string(typ)),
		zap.Int("steps", len(def.Steps)),
	)
	return b, nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func (p *Parser) conditionNames() []string {
	names := make([]string, 0, len(p.conditionRegistry))
	for name := range p.conditionRegistry {
		names = append(names, name)
	}
	return names
}

// resolveCondition 解析条件：优先匹配命名条件，否则编译为表达式
func (p *Parser) resolveCondition(src string, vars map[string]any) (workflow.ConditionFunc, error) {
	if fn, ok := p.conditionRegistry[src]; ok {
		return fn, nil
	}
	expr, err := CompileExpression(src)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	return func(memory map[string]any) (bool, error) {
		env := maps.Clone(memory)
		if env == nil {
			env = make(map[string]any, 1)
		}
		env[varsKey] = vars
		return expr.Eval(env), nil
	}, nil
}

func buildTask(step *StepDef, vars map[string]any) *workflow.Task {
	id := step.Task.ID
	if id == "" {
		id = step.Name
	}
	task := workflow.NewTask(id, interpolate(step.Task.Description, vars))
	task.Type = step.Task.Type
	for k, v := range step.Task.Parameters {
		if s, ok := v.(string); ok {
			task.Parameters[k] = interpolate(s, vars)
		} else {
			task.Parameters[k] = v
		}
	}
	task.Metadata = maps.Clone(step.Task.Metadata)
	return task
}

func mergeRetry(base workflow.RetryPolicy, r *RetryDef) workflow.RetryPolicy {
	if r == nil {
		return base
	}
	if r.MaxAttempts > 0 {
		base.MaxAttempts = r.MaxAttempts
	}
	if r.Delay != nil {
		base.Delay = *r.Delay
	}
	if r.BackoffFactor > 0 {
		base.BackoffFactor = r.BackoffFactor
	}
	return base
}

// interpolate 变量插值（替换 ${var_name}）。
// 从左到右单遍扫描，替换结果不再展开；未定义的引用原样保留。
func interpolate(template string, vars map[string]any) string {
	if !strings.Contains(template, "${") {
		return template
	}
	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			break
		}
		b.WriteString(rest[:start])
		ref := rest[start : start+end+1]
		if value, ok := vars[ref[2:len(ref)-1]]; ok {
			fmt.Fprintf(&b, "%v", value)
		} else {
			b.WriteString(ref)
		}
		rest = rest[start+end+1:]
	}
	b.WriteString(rest)
	return b.String()
}
