package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/agents"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/cache"
	"github.com/BaSui01/crewflow/internal/database"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/internal/telemetry"
	"github.com/BaSui01/crewflow/workflow"
	"github.com/BaSui01/crewflow/workflow/dsl"
	"github.com/BaSui01/crewflow/workflow/store"
)

// =============================================================================
// 🧩 运行环境
// =============================================================================

// app 汇总一次命令执行需要的依赖，Close 按创建的逆序释放
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	agents    *agents.Registry
	registry  *prometheus.Registry
	collector *metrics.Collector
	history   store.Store
	providers *telemetry.Providers

	closers []func() error
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp 根据配置组装 Agent 注册表、指标、运行记录与遥测
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		agents: builtinAgents(cfg.Workflow, logger),
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.collector = metrics.NewCollector(cfg.Metrics.Namespace, a.registry, logger)
	}

	if cfg.History.Enabled {
		s, closeFn, err := openHistory(ctx, cfg, logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.history = s
		a.closers = append(a.closers, closeFn)
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		a.providers = providers
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return providers.Shutdown(shutdownCtx)
		})
	}

	return a, nil
}

// builtinAgents 注册内置 Agent，配置了限速时统一包装
func builtinAgents(cfg config.WorkflowConfig, logger *zap.Logger) *agents.Registry {
	reg := agents.NewRegistry(logger).
		MustRegister("echo", agents.Echo("echo")).
		MustRegister("planner", agents.Planner("planner"))

	if cfg.AgentRateLimit > 0 {
		reg.Wrap(func(_ string, agent workflow.Agent) workflow.Agent {
			return agents.NewRateLimited(agent, cfg.AgentRateLimit, cfg.AgentBurst)
		})
	}
	return reg
}

// openHistory 按 history.backend 打开运行记录存储
func openHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func() error, error) {
	switch store.Backend(cfg.History.Backend) {
	case store.BackendMemory:
		s := store.NewMemoryStore()
		return s, s.Close, nil

	case store.BackendGorm:
		pm, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open history database: %w", err)
		}
		if !cfg.Database.AutoMigrate {
			// 表结构由 `crewflow migrate up` 维护
			return store.NewGormStore(pm.DB(), store.WithGormLogger(logger)), pm.Close, nil
		}
		s, err := store.OpenGormStore(pm.DB(), store.WithGormLogger(logger))
		if err != nil {
			_ = pm.Close()
			return nil, nil, fmt.Errorf("open history database: %w", err)
		}
		return s, pm.Close, nil

	case store.BackendRedis:
		m, err := cache.NewManager(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open history redis: %w", err)
		}
		s := store.NewRedisStore(m.Client(), store.RedisOptions{
			KeyPrefix: cfg.History.KeyPrefix,
			TTL:       cfg.History.TTL,
		}, logger)
		return s, m.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown history backend: %q", cfg.History.Backend)
	}
}

// parser 创建带配置默认值的 DSL 解析器
func (a *app) parser() *dsl.Parser {
	wf := a.cfg.Workflow
	return dsl.NewParser(a.agents,
		dsl.WithLogger(a.logger),
		dsl.WithDefaults(dsl.Defaults{
			MaxConcurrency: wf.MaxConcurrency,
			MaxIterations:  wf.MaxIterations,
			Retry: workflow.RetryPolicy{
				MaxAttempts:   wf.Retry.MaxAttempts,
				Delay:         wf.Retry.Delay,
				BackoffFactor: wf.Retry.BackoffFactor,
			},
		}),
	)
}

// observers 返回需要挂到工作流上的观察者
func (a *app) observers() []workflow.Observer {
	var obs []workflow.Observer
	if a.collector != nil {
		obs = append(obs, a.collector)
	}
	if a.history != nil {
		var sink workflow.HistorySink = a.history
		if a.collector != nil {
			sink = metrics.InstrumentSink(sink, a.collector, a.cfg.History.Backend)
		}
		var opts []workflow.HistoryOption
		if a.cfg.History.RecordResults {
			opts = append(opts, workflow.WithStepResults())
		}
		obs = append(obs, workflow.NewHistoryRecorder(sink, a.logger, opts...))
	}
	return obs
}

// Close 逆序关闭资源，汇总全部错误
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
