// Package dsl 提供 YAML 声明式工作流定义，支持变量插值、条件表达式
// 与重试策略，并将定义编译为 workflow.WorkflowBuilder。
package dsl
