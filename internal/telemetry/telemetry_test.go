package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/workflow"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func shutdownQuietly(t *testing.T, p *Providers) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow-test",
		SampleRate:   0.5,
	}
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	shutdownQuietly(t, p)

	assert.True(t, p.Enabled())
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")
}

func TestInit_NilLogger(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	p, err := Init(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
}

// 工作流执行产生的 span 经由全局 provider 导出
func TestInit_ExportsWorkflowSpans(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	exporter := tracetest.NewInMemoryExporter()
	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow-test",
		SampleRate:   1.0,
	}
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t), WithSpanExporter(exporter))
	require.NoError(t, err)
	shutdownQuietly(t, p)

	var agentTraceID string
	agent := workflow.AgentFunc(func(ctx context.Context, _ *workflow.Task, _ *workflow.ExecutionContext) (any, error) {
		agentTraceID, _ = workflow.TraceIDFromContext(ctx)
		return "ok", nil
	})
	w, err := workflow.NewWorkflowBuilder("traced", workflow.TypeSequential).
		AddStep(agent, workflow.NewTask("t1", "first"), "first").
		AddStep(agent, workflow.NewTask("t2", "second"), "second").
		Build(nil)
	require.NoError(t, err)

	_, err = w.Execute(context.Background())
	require.NoError(t, err)

	spans := exporter.GetSpans()
	names := make([]string, 0, len(spans))
	var root tracetest.SpanStub
	for _, s := range spans {
		names = append(names, s.Name)
		if s.Name == "workflow.execute" {
			root = s
		}
	}
	assert.ElementsMatch(t, []string{"workflow.step", "workflow.step", "workflow.execute"}, names)
	assert.Contains(t, root.Attributes, attribute.String("workflow.name", "traced"))
	assert.Equal(t, root.SpanContext.TraceID().String(), agentTraceID)

	for _, s := range spans {
		if s.Name == "workflow.step" {
			assert.Equal(t, root.SpanContext.TraceID(), s.SpanContext.TraceID())
			assert.Equal(t, root.SpanContext.SpanID(), s.Parent.SpanID())
		}
	}
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestProviders_Shutdown_Noop(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_Shutdown_Real(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow-shutdown-test",
		SampleRate:   1.0,
	}
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	// 没有 collector 时 exporter 可能返回连接错误，这里只关心不 panic
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() {
		_ = p.Shutdown(ctx)
	})
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制中 ReadBuildInfo 通常返回 "(devel)"
	assert.Equal(t, "dev", buildVersion())
}
