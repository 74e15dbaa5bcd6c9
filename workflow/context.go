package workflow

import (
	"context"

	"github.com/BaSui01/crewflow/internal/ctxkeys"
)

// RunIDFromContext returns the run ID of the workflow executing the current
// agent call.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return ctxkeys.RunID(ctx)
}

// StepNameFromContext returns the name of the step whose agent is running.
func StepNameFromContext(ctx context.Context) (string, bool) {
	return ctxkeys.StepName(ctx)
}

// TraceIDFromContext returns the trace ID of the run. It is only set when a
// recording tracer provider is installed.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	return ctxkeys.TraceID(ctx)
}
