// =============================================================================
// 📦 CrewFlow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Workflow:  DefaultWorkflowConfig(),
		History:   DefaultHistoryConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultWorkflowConfig 返回默认工作流参数
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxConcurrency: 5,
		MaxIterations:  10,
		Retry: RetryConfig{
			MaxAttempts:   3,
			Delay:         time.Second,
			BackoffFactor: 2.0,
		},
		AgentRateLimit: 0,
		AgentBurst:     1,
	}
}

// DefaultHistoryConfig 返回默认运行记录配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled:       false,
		Backend:       "memory",
		RecordResults: false,
		KeyPrefix:     "crewflow:",
		TTL:           7 * 24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "crewflow",
		Password:        "",
		Name:            "crewflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:     false,
		Namespace:   "crewflow",
		Addr:        ":9091",
		Path:        "/metrics",
		PushTimeout: 5 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow",
		SampleRate:   0.1,
	}
}
