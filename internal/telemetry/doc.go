// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 CrewFlow 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 工作流引擎通过全局 otel.Tracer 产生 workflow.execute / workflow.step span，
// 初始化后即由此处注册的 provider 导出。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
