package dsl

import "time"

// WorkflowDef 工作流 DSL 顶层结构
type WorkflowDef struct {
	// Version DSL 版本
	Version string `yaml:"version" json:"version"`
	// Name 工作流名称
	Name string `yaml:"name" json:"name"`
	// Description 工作流描述
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Type 调度策略：sequential, parallel, conditional, iterative, dynamic
	Type string `yaml:"type" json:"type"`

	// MaxConcurrency parallel 每轮最大并发数，0 表示使用默认值
	MaxConcurrency int `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`
	// Timeout 仅记录，不参与调度
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// MaxIterations iterative 最大轮数，0 表示使用默认值
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	// Variables 全局变量，可在任务描述与字符串参数中用 ${name} 引用，
	// 条件表达式中以 vars.name 访问
	Variables map[string]any `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Defaults 步骤未声明 retry 时使用的默认重试策略
	Defaults *DefaultsDef `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	// Steps 按声明顺序排列的步骤
	Steps []StepDef `yaml:"steps" json:"steps"`

	// Metadata 元数据
	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// DefaultsDef 步骤默认配置
type DefaultsDef struct {
	Retry *RetryDef `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// StepDef 步骤定义
type StepDef struct {
	Name      string    `yaml:"name" json:"name"`
	Agent     string    `yaml:"agent" json:"agent"` // 通过 AgentResolver 解析
	Task      TaskDef   `yaml:"task" json:"task"`
	DependsOn []string  `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Condition string    `yaml:"condition,omitempty" json:"condition,omitempty"` // 条件表达式或已注册的命名条件
	Retry     *RetryDef `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// TaskDef 任务定义
type TaskDef struct {
	ID          string         `yaml:"id,omitempty" json:"id,omitempty"`
	Type        string         `yaml:"type,omitempty" json:"type,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// RetryDef 重试策略定义，未填写的字段取 workflow.DefaultRetryPolicy 的值
type RetryDef struct {
	MaxAttempts   int            `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	Delay         *time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
	BackoffFactor float64        `yaml:"backoff_factor,omitempty" json:"backoff_factor,omitempty"`
}
