package main

import (
	"context"
	"fmt"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/server"
	"github.com/BaSui01/crewflow/internal/tlsutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 Metrics 暴露与推送
// =============================================================================

// startMetricsServer 在 addr 上暴露 /metrics（或自定义 path），端口冲突直接返回错误
func startMetricsServer(addr, path string, gatherer prometheus.Gatherer, logger *zap.Logger) (*server.Manager, error) {
	cfg := server.DefaultConfig()
	cfg.Addr = addr

	srv := server.NewManager(server.MetricsHandler(path, gatherer), cfg,
		logger.With(zap.String("endpoint", "metrics")))
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("listen metrics on %s: %w", addr, err)
	}
	return srv, nil
}

// pushMetrics 将注册表推送到 Pushgateway（job=crewflow）。
// 指标自带 workflow 标签，不能再用它做分组。
func pushMetrics(ctx context.Context, cfg config.MetricsConfig, gatherer prometheus.Gatherer) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.PushTimeout)
	defer cancel()

	err := push.New(cfg.PushGateway, "crewflow").
		Client(tlsutil.PushClient(cfg.PushTimeout)).
		Gatherer(gatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", cfg.PushGateway, err)
	}
	return nil
}
