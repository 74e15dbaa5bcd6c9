// =============================================================================
// 📦 测试数据工厂 - 工作流定义
// =============================================================================
// 提供预定义的工作流拓扑与 YAML 定义，用于测试
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/BaSui01/crewflow/workflow"
)

// =============================================================================
// 🔷 Builder 工厂
// =============================================================================

// Diamond 返回菱形依赖的并行工作流：a → {b, c} → d
func Diamond(agent workflow.Agent) *workflow.WorkflowBuilder {
	return workflow.NewWorkflowBuilder("diamond", workflow.TypeParallel).
		AddStep(agent, workflow.NewTask("a", "root"), "a").
		AddStep(agent, workflow.NewTask("b", "left"), "b", workflow.DependsOn("a")).
		AddStep(agent, workflow.NewTask("c", "right"), "c", workflow.DependsOn("a")).
		AddStep(agent, workflow.NewTask("d", "join"), "d", workflow.DependsOn("b", "c"))
}

// Chain 返回按 names 顺序逐个依赖的工作流
func Chain(typ workflow.Type, agent workflow.Agent, names ...string) *workflow.WorkflowBuilder {
	b := workflow.NewWorkflowBuilder(fmt.Sprintf("%s-chain", typ), typ)
	for i, name := range names {
		var opts []workflow.StepOption
		if i > 0 {
			opts = append(opts, workflow.DependsOn(names[i-1]))
		}
		b.AddStep(agent, workflow.NewTask(name, "step "+name), name, opts...)
	}
	return b
}

// FanOut 返回 n 个互不依赖的并行步骤 s0..s{n-1}
func FanOut(agent workflow.Agent, n, maxConcurrency int) *workflow.WorkflowBuilder {
	b := workflow.NewWorkflowBuilder("fanout", workflow.TypeParallel).SetMaxConcurrency(maxConcurrency)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("s%d", i)
		b.AddStep(agent, workflow.NewTask(name, name), name)
	}
	return b
}

// =============================================================================
// 📝 YAML 定义
// =============================================================================

// SpecialistCrewYAML 规划步骤决定启用哪些专家，集成步骤汇总结果。
// 只依赖内置的 planner / echo Agent。
const SpecialistCrewYAML = `
name: crew
type: dynamic
description: plan, dispatch specialists, integrate
steps:
  - name: planning
    agent: planner
    task:
      description: decide capabilities
      parameters:
        required_capabilities: research
  - name: research_specialist
    agent: echo
    depends_on: [planning]
    condition: '"research" in planning.required_capabilities'
    task:
      description: gather sources
  - name: coding_specialist
    agent: echo
    depends_on: [planning]
    condition: '"coding" in planning.required_capabilities'
    task:
      description: write code
  - name: integration
    agent: echo
    depends_on: [research_specialist, coding_specialist]
    task:
      description: combine results
`

// ReviewYAML 按评分阈值选择分支的条件工作流，scorer 由调用方注册
const ReviewYAML = `
name: review
type: conditional
variables:
  threshold: 50
defaults:
  retry:
    max_attempts: 1
steps:
  - name: score
    agent: scorer
  - name: approve
    agent: echo
    depends_on: [score]
    condition: score.value >= vars.threshold
  - name: reject
    agent: echo
    depends_on: [score]
    condition: score.value < vars.threshold
`
