// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 workflow.Observer
type Collector struct {
	workflow.NopObserver

	// 工作流指标
	workflowRunsTotal   *prometheus.CounterVec
	workflowRunDuration *prometheus.HistogramVec
	workflowRunsActive  *prometheus.GaugeVec
	workflowRounds      *prometheus.HistogramVec

	// 步骤指标
	stepExecutionsTotal *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	stepRetriesTotal    *prometheus.CounterVec

	// 运行记录指标
	historySavesTotal   *prometheus.CounterVec
	historySaveDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg；reg 为 nil 时使用默认注册表
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 工作流指标
	c.workflowRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of finished workflow runs",
		},
		[]string{"workflow", "type", "status"},
	)

	c.workflowRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workflow", "type"},
	)

	c.workflowRunsActive = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_runs_active",
			Help:      "Number of workflow runs in progress",
		},
		[]string{"workflow"},
	)

	c.workflowRounds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_rounds",
			Help:      "Scheduling rounds per workflow run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		},
		[]string{"workflow", "type"},
	)

	// 步骤指标
	c.stepExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of step executions",
		},
		[]string{"workflow", "step", "agent", "status"}, // status: completed, skipped, failed, cancelled
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step duration in seconds, retries included",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"workflow", "agent"},
	)

	c.stepRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Total number of step retries",
		},
		[]string{"workflow", "step", "agent"},
	)

	// 运行记录指标
	c.historySavesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_saves_total",
			Help:      "Total number of run record saves",
		},
		[]string{"backend", "status"},
	)

	c.historySaveDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_save_duration_seconds",
			Help:      "Run record save duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔁 workflow.Observer 实现
// =============================================================================

func (c *Collector) OnWorkflowStart(_ context.Context, w *workflow.Workflow) {
	c.workflowRunsActive.WithLabelValues(w.Name()).Inc()
}

func (c *Collector) OnWorkflowEnd(_ context.Context, w *workflow.Workflow, _ error) {
	c.workflowRunsActive.WithLabelValues(w.Name()).Dec()
	c.RecordWorkflowRun(w.Name(), string(w.Type()), string(w.Status()), w.Duration(), w.Rounds())
}

func (c *Collector) OnStepRetry(_ context.Context, w *workflow.Workflow, step *workflow.WorkflowStep, _ int, _ time.Duration, _ error) {
	c.stepRetriesTotal.WithLabelValues(w.Name(), step.Name(), workflow.AgentName(step.Agent())).Inc()
}

func (c *Collector) OnStepEnd(_ context.Context, w *workflow.Workflow, step *workflow.WorkflowStep, err error) {
	c.RecordStepExecution(w.Name(), step.Name(), workflow.AgentName(step.Agent()), stepStatus(step, err), step.Duration())
}

// =============================================================================
// 🎯 指标记录
// =============================================================================

// RecordWorkflowRun 记录一次结束的工作流运行
func (c *Collector) RecordWorkflowRun(name, typ, status string, duration time.Duration, rounds int) {
	c.workflowRunsTotal.WithLabelValues(name, typ, status).Inc()
	c.workflowRunDuration.WithLabelValues(name, typ).Observe(duration.Seconds())
	c.workflowRounds.WithLabelValues(name, typ).Observe(float64(rounds))
}

// RecordStepExecution 记录一次步骤执行
func (c *Collector) RecordStepExecution(workflowName, step, agent, status string, duration time.Duration) {
	c.stepExecutionsTotal.WithLabelValues(workflowName, step, agent, status).Inc()
	c.stepDuration.WithLabelValues(workflowName, agent).Observe(duration.Seconds())
}

// RecordHistorySave 记录一次运行记录写入
func (c *Collector) RecordHistorySave(backend string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.historySavesTotal.WithLabelValues(backend, status).Inc()
	c.historySaveDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func stepStatus(step *workflow.WorkflowStep, err error) string {
	switch {
	case step.Status() == workflow.StatusCancelled:
		return string(workflow.StatusCancelled)
	case err != nil:
		return string(workflow.StatusFailed)
	case step.Skipped():
		return "skipped"
	default:
		return string(workflow.StatusCompleted)
	}
}
