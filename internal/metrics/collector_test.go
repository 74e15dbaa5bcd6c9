package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/testutil/mocks"
	"github.com/BaSui01/crewflow/workflow"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.workflowRunsTotal)
	assert.NotNil(t, collector.workflowRunDuration)
	assert.NotNil(t, collector.stepExecutionsTotal)
	assert.NotNil(t, collector.stepRetriesTotal)
	assert.NotNil(t, collector.historySavesTotal)
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("dup", reg, nil)
	assert.Panics(t, func() { NewCollector("dup", reg, nil) })
}

func TestCollector_RecordWorkflowRun(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordWorkflowRun("report", "parallel", "completed", 2*time.Second, 3)
	collector.RecordWorkflowRun("report", "parallel", "completed", time.Second, 2)
	collector.RecordWorkflowRun("report", "parallel", "failed", time.Second, 1)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.workflowRunsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("report", "parallel", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.workflowRunDuration))
}

func TestCollector_RecordHistorySave(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordHistorySave("redis", nil, time.Millisecond)
	collector.RecordHistorySave("redis", errors.New("down"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.historySavesTotal.WithLabelValues("redis", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.historySavesTotal.WithLabelValues("redis", "error")))
}

func TestCollector_ObservesWorkflow(t *testing.T) {
	collector := newTestCollector(t)

	calls := 0
	flaky := workflow.AgentFunc(func(context.Context, *workflow.Task, *workflow.ExecutionContext) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	never := workflow.AgentFunc(func(context.Context, *workflow.Task, *workflow.ExecutionContext) (any, error) {
		return "unreachable", nil
	})

	w, err := workflow.NewWorkflowBuilder("observed", workflow.TypeSequential).
		AddStep(flaky, workflow.NewTask("a", ""), "a",
			workflow.WithRetryPolicy(workflow.RetryPolicy{MaxAttempts: 2, BackoffFactor: 1})).
		AddStep(never, workflow.NewTask("b", ""), "b",
			workflow.DependsOn("a"),
			workflow.When(func(map[string]any) (bool, error) { return false, nil })).
		WithObserver(collector).
		Build(nil)
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("observed", "sequential", "completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.workflowRunsActive.WithLabelValues("observed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("observed", "a", "anonymous", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("observed", "b", "anonymous", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepRetriesTotal.WithLabelValues("observed", "a", "anonymous")))
}

func TestCollector_FailedStep(t *testing.T) {
	collector := newTestCollector(t)
	boom := errors.New("boom")

	w, err := workflow.NewWorkflowBuilder("failing", workflow.TypeParallel).
		AddStep(workflow.AgentFunc(func(context.Context, *workflow.Task, *workflow.ExecutionContext) (any, error) {
			return nil, boom
		}), workflow.NewTask("x", ""), "x", workflow.WithRetryPolicy(workflow.NoRetry())).
		WithObserver(collector).
		Build(nil)
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("failing", "parallel", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("failing", "x", "anonymous", "failed")))
}

func TestInstrumentSink(t *testing.T) {
	collector := newTestCollector(t)
	var saved []string
	sink := InstrumentSink(workflow.HistorySinkFunc(func(_ context.Context, rec *workflow.RunRecord) error {
		saved = append(saved, rec.RunID)
		if rec.RunID == "bad" {
			return errors.New("rejected")
		}
		return nil
	}), collector, "memory")

	require.NoError(t, sink.Save(context.Background(), &workflow.RunRecord{RunID: "ok"}))
	require.Error(t, sink.Save(context.Background(), &workflow.RunRecord{RunID: "bad"}))

	assert.Equal(t, []string{"ok", "bad"}, saved)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.historySavesTotal.WithLabelValues("memory", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.historySavesTotal.WithLabelValues("memory", "error")))
}

func TestStepStatus(t *testing.T) {
	step := workflow.NewWorkflowStep("s", workflow.AgentFunc(func(context.Context, *workflow.Task, *workflow.ExecutionContext) (any, error) {
		return nil, nil
	}), nil)
	assert.Equal(t, "completed", stepStatus(step, nil))
	assert.Equal(t, "failed", stepStatus(step, errors.New("x")))

	require.True(t, step.Cancel())
	assert.Equal(t, "cancelled", stepStatus(step, nil))
}

// Collector 与 HistoryRecorder 同时观察一次运行
func TestCollector_WithInstrumentedRecorder(t *testing.T) {
	collector := newTestCollector(t)
	sink := mocks.NewMockHistorySink()
	agent := mocks.NewMockAgent("flaky").WithResult("ok").FailTimes(1, nil)

	w, err := workflow.NewWorkflowBuilder("observed", workflow.TypeSequential).
		AddStep(agent, workflow.NewTask("t", ""), "only",
			workflow.WithRetryPolicy(workflow.RetryPolicy{MaxAttempts: 2, BackoffFactor: 1})).
		WithObserver(collector, workflow.NewHistoryRecorder(InstrumentSink(sink, collector, "memory"), nil)).
		Build(nil)
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, agent.CallCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepRetriesTotal.WithLabelValues("observed", "only", "flaky")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.historySavesTotal.WithLabelValues("memory", "success")))

	rec, ok := sink.Last()
	require.True(t, ok)
	step, ok := rec.Step("only")
	require.True(t, ok)
	assert.Equal(t, 2, step.Attempts)
}
