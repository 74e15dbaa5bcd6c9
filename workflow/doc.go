// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供多 Agent 协作的工作流调度引擎。

# 概述

workflow 包将一组独立的执行单元（Agent）按照具名的依赖图组织为步骤
（WorkflowStep），并在共享内存（Memory）中传递各步骤的结果。引擎支持
五种调度策略、运行期环检测、按步骤的指数退避重试以及条件跳过。

# 核心接口与类型

  - Agent           : 执行接口 Execute(ctx, task, ec) (any, error)
  - Task            : 交给 Agent 的任务载荷，引擎注入 workflow_memory 与 step_name
  - WorkflowStep    : 绑定 Agent + Task + RetryPolicy 的步骤，负责重试与跳过
  - Workflow        : 按声明顺序保存步骤，按 Type 分派到调度策略
  - WorkflowBuilder : Fluent API 构建 Workflow（校验依赖存在性）
  - Observer        : 运行生命周期回调，供指标、历史记录使用
  - HistoryRecorder : 将每次运行汇总为 RunRecord 并交给 HistorySink

# 调度策略

  - sequential  : 每次执行第一个依赖已满足的待执行步骤
  - parallel    : 按轮次并发执行就绪步骤，每轮截断到 MaxConcurrency
  - conditional : 与 sequential 相同，条件判断由步骤自身完成
  - iterative   : 反复遍历直到一轮中没有新步骤执行，最多 MaxIterations 轮
  - dynamic     : 由 StepSelector 逐个挑选就绪步骤

sequential、parallel、conditional 在运行期检测循环依赖并返回
CircularDependencyError。

# 预置拓扑

  - NewSequentialWorkflow         : 单 Agent 顺序链
  - NewParallelProcessingWorkflow : 多 Agent 轮询分配的并行处理
  - NewSpecialistWorkflow         : planning → 专家步骤（按能力条件执行）→ integration
*/
package workflow
