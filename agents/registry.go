package agents

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/BaSui01/crewflow/workflow"
	"go.uber.org/zap"
)

// Registry errors
var (
	ErrAgentExists   = errors.New("agent already registered")
	ErrAgentNotFound = errors.New("agent not found")
)

// Registry 管理 Agent 注册与查找，并发安全
type Registry struct {
	agents map[string]workflow.Agent
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewRegistry 创建 Agent 注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]workflow.Agent),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// Register 以 name 注册 agent。未实现 workflow.Named 的 agent 会被包装，
// 使日志与指标使用注册名。
func (r *Registry) Register(name string, agent workflow.Agent) error {
	if name == "" {
		return fmt.Errorf("agent name is required")
	}
	if agent == nil {
		return fmt.Errorf("agent %q is nil", name)
	}
	if _, ok := agent.(workflow.Named); !ok {
		agent = WithName(name, agent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("%w: %s", ErrAgentExists, name)
	}
	r.agents[name] = agent

	r.logger.Debug("agent registered",
		zap.String("name", name),
		zap.String("agent", workflow.AgentName(agent)),
	)
	return nil
}

// MustRegister 注册失败时 panic，用于初始化阶段
func (r *Registry) MustRegister(name string, agent workflow.Agent) *Registry {
	if err := r.Register(name, agent); err != nil {
		panic(err)
	}
	return r
}

// Unregister 删除一个 Agent
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[name]; !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	delete(r.agents, name)
	r.logger.Debug("agent unregistered", zap.String("name", name))
	return nil
}

// Get 按名称获取 Agent
func (r *Registry) Get(name string) (workflow.Agent, error) {
	agent, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return agent, nil
}

// Resolve implements dsl.AgentResolver.
func (r *Registry) Resolve(name string) (workflow.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[name]
	return agent, ok
}

// Names 返回已注册名称（有序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len 返回已注册数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Wrap 对所有已注册 Agent 应用装饰器，例如统一限速
func (r *Registry) Wrap(decorate func(name string, agent workflow.Agent) workflow.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, agent := range r.agents {
		r.agents[name] = decorate(name, agent)
	}
}
