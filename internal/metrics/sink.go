package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/crewflow/workflow"
)

// InstrumentSink 包装 HistorySink，记录每次写入的结果与耗时
func InstrumentSink(sink workflow.HistorySink, c *Collector, backend string) workflow.HistorySink {
	return workflow.HistorySinkFunc(func(ctx context.Context, rec *workflow.RunRecord) error {
		start := time.Now()
		err := sink.Save(ctx, rec)
		c.RecordHistorySave(backend, err, time.Since(start))
		return err
	})
}
