// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 crewflow 命令行入口。

# 概述

crewflow 读取 YAML 工作流定义，使用内置 Agent 执行并把最终共享内存
以 JSON 输出到 stdout。日志写 stderr，配置来自 YAML 文件与
CREWFLOW_* 环境变量。

# 子命令

  - run       执行工作流，--var 覆盖 DSL 变量
  - validate  只做解析与校验，不执行
  - agents    列出内置 Agent
  - history   查询持久化的运行记录（database / redis 后端）
  - version   显示版本信息

# 可选能力

  - 运行记录：history.enabled 时经 HistoryRecorder 写入 memory / database / redis
  - 指标：metrics.enabled 时注册 Prometheus Collector，metrics.addr 暴露
    /metrics，metrics.push_gateway 在运行结束后推送
  - 追踪：telemetry.enabled 时初始化 OTLP 导出
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
