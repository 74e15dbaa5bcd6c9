// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 agents 提供可直接挂到工作流步骤上的 Agent 实现与组合工具。

# 核心类型

  - Registry：按名称管理 Agent，实现 dsl.AgentResolver，供 YAML 工作流解析使用。
  - Func / Static / Echo / Planner：轻量 Agent，适合测试、演示与规划步骤。
  - Mapped：在调用前后转换任务与结果。
  - RateLimited：基于 golang.org/x/time/rate 的调用限速装饰器。

# 命名

本包构造的 Agent 都实现 workflow.Named，日志字段与指标标签使用该名称。
*/
package agents
