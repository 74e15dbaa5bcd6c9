// Package config 提供 CrewFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → CREWFLOW_* 环境变量 的顺序叠加，
// 覆盖工作流默认参数、运行记录后端、日志、指标与遥测。
package config
