// MockAgent 是 workflow.Agent 的脚本化测试实现。
//
// 支持固定结果、前 N 次失败、延迟与自定义函数，并记录每次调用。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/workflow"
)

// ErrMockFailure 是未指定错误时注入的默认错误
var ErrMockFailure = errors.New("mock agent failure")

// MockAgentCall 记录单次调用
type MockAgentCall struct {
	Task   *workflow.Task
	Step   string
	Memory map[string]any
	Result any
	Error  error
}

// MockAgent 脚本化 Agent
type MockAgent struct {
	mu sync.Mutex

	name   string
	result any
	err    error
	fn     func(ctx context.Context, task *workflow.Task) (any, error)

	// 行为控制
	failTimes int
	failErr   error
	delay     time.Duration

	calls    []MockAgentCall
	inFlight int
	peak     int
}

// --- 构造函数和 Builder 方法 ---

// NewMockAgent 创建返回 nil 结果的 MockAgent
func NewMockAgent(name string) *MockAgent {
	return &MockAgent{name: name}
}

// WithResult 设置固定结果
func (m *MockAgent) WithResult(result any) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	return m
}

// WithError 每次调用都返回 err
func (m *MockAgent) WithError(err error) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// FailTimes 前 n 次调用返回 err（nil 时使用 ErrMockFailure），之后正常返回
func (m *MockAgent) FailTimes(n int, err error) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = ErrMockFailure
	}
	m.failTimes = n
	m.failErr = err
	return m
}

// WithDelay 每次调用前等待 d，ctx 取消时提前返回
func (m *MockAgent) WithDelay(d time.Duration) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFunc 使用自定义函数计算结果，优先于 WithResult
func (m *MockAgent) WithFunc(fn func(ctx context.Context, task *workflow.Task) (any, error)) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// --- workflow.Agent 实现 ---

// Name implements workflow.Named.
func (m *MockAgent) Name() string { return m.name }

// Execute implements workflow.Agent.
func (m *MockAgent) Execute(ctx context.Context, task *workflow.Task, _ *workflow.ExecutionContext) (any, error) {
	m.mu.Lock()
	callIndex := len(m.calls)
	m.calls = append(m.calls, MockAgentCall{
		Task:   task.Clone(),
		Step:   task.StepName(),
		Memory: task.WorkflowMemory(),
	})
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	delay, fn, result, err := m.delay, m.fn, m.result, m.err
	if callIndex < m.failTimes {
		err = m.failErr
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err == nil && fn != nil {
		result, err = fn(ctx, task)
	}
	if err != nil {
		result = nil
	}

	m.mu.Lock()
	m.calls[callIndex].Result = result
	m.calls[callIndex].Error = err
	m.mu.Unlock()

	return result, err
}

// --- 调用记录 ---

// Calls 返回调用记录副本
func (m *MockAgent) Calls() []MockAgentCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockAgentCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockAgent) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall 返回最后一次调用，无调用时 ok 为 false
func (m *MockAgent) LastCall() (MockAgentCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return MockAgentCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// PeakConcurrency 返回同时执行的最大调用数
func (m *MockAgent) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Reset 清空调用记录
func (m *MockAgent) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.peak = 0
}
