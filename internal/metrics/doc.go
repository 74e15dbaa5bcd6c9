// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的工作流指标采集。

# 核心类型

  - Collector：实现 workflow.Observer，按工作流、步骤与 Agent 维度记录
    运行次数、耗时、调度轮数与重试次数。
  - InstrumentSink：包装 workflow.HistorySink，统计运行记录写入结果。

指标注册到调用方传入的 prometheus.Registerer，测试可使用独立注册表。
*/
package metrics
