package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleRecord(runID, name string, status workflow.Status, offset time.Duration) *workflow.RunRecord {
	start := baseTime.Add(offset)
	rec := &workflow.RunRecord{
		RunID:     runID,
		Workflow:  name,
		Type:      workflow.TypeSequential,
		Status:    status,
		StartTime: start,
		EndTime:   start.Add(150 * time.Millisecond),
		Duration:  150 * time.Millisecond,
		Rounds:    2,
		Metadata:  map[string]any{"max_concurrency": 5},
		Steps: []workflow.StepRecord{
			{
				Name: "fetch", Agent: "fetcher", Status: workflow.StatusCompleted, Attempts: 1,
				StartTime: start, EndTime: start.Add(50 * time.Millisecond), Duration: 50 * time.Millisecond,
				Result: "rows",
			},
			{
				Name: "summarize", Agent: "writer", Status: status, Attempts: 3,
				StartTime: start.Add(50 * time.Millisecond), EndTime: start.Add(150 * time.Millisecond),
				Duration: 100 * time.Millisecond,
			},
		},
	}
	if status == workflow.StatusFailed {
		rec.Error = "agent failed"
		rec.Steps[1].Error = "agent failed"
	}
	return rec
}

func runIDs(recs []*workflow.RunRecord) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.RunID
	}
	return ids
}

// testStoreContract 所有后端共享的行为校验
func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		rec := sampleRecord("run-1", "report", workflow.StatusCompleted, 0)
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "report", got.Workflow)
		assert.Equal(t, workflow.TypeSequential, got.Type)
		assert.Equal(t, workflow.StatusCompleted, got.Status)
		assert.Equal(t, 2, got.Rounds)
		assert.Equal(t, 150*time.Millisecond, got.Duration)
		assert.WithinDuration(t, rec.StartTime, got.StartTime, time.Microsecond)
		assert.EqualValues(t, 5, got.Metadata["max_concurrency"])

		require.Len(t, got.Steps, 2)
		assert.Equal(t, "fetch", got.Steps[0].Name)
		assert.Equal(t, "rows", got.Steps[0].Result)
		assert.Equal(t, "summarize", got.Steps[1].Name)
		assert.Equal(t, 3, got.Steps[1].Attempts)
		assert.Nil(t, got.Steps[1].Result)
	})

	t.Run("missing run", func(t *testing.T) {
		_, err := s.Get(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid record", func(t *testing.T) {
		assert.ErrorIs(t, s.Save(ctx, nil), ErrInvalidInput)
		assert.ErrorIs(t, s.Save(ctx, &workflow.RunRecord{Workflow: "x"}), ErrInvalidInput)
	})

	t.Run("list by workflow newest first", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, sampleRecord("ingest-a", "ingest", workflow.StatusCompleted, time.Minute)))
		require.NoError(t, s.Save(ctx, sampleRecord("ingest-b", "ingest", workflow.StatusFailed, 3*time.Minute)))
		require.NoError(t, s.Save(ctx, sampleRecord("ingest-c", "ingest", workflow.StatusCompleted, 2*time.Minute)))

		all, err := s.ListByWorkflow(ctx, "ingest", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"ingest-b", "ingest-c", "ingest-a"}, runIDs(all))

		limited, err := s.ListByWorkflow(ctx, "ingest", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"ingest-b", "ingest-c"}, runIDs(limited))

		none, err := s.ListByWorkflow(ctx, "unknown", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("list by status", func(t *testing.T) {
		failed, err := s.ListByStatus(ctx, workflow.StatusFailed, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"ingest-b"}, runIDs(failed))
		assert.Equal(t, "agent failed", failed[0].Error)
	})

	t.Run("save replaces earlier record", func(t *testing.T) {
		rec := sampleRecord("ingest-b", "ingest", workflow.StatusCompleted, 3*time.Minute)
		rec.Steps = rec.Steps[:1]
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Get(ctx, "ingest-b")
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusCompleted, got.Status)
		assert.Len(t, got.Steps, 1)

		failed, err := s.ListByStatus(ctx, workflow.StatusFailed, 0)
		require.NoError(t, err)
		assert.Empty(t, failed)

		all, err := s.ListByWorkflow(ctx, "ingest", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("same start time ordered by run id", func(t *testing.T) {
		for _, id := range []string{"tie-c", "tie-a", "tie-b"} {
			require.NoError(t, s.Save(ctx, sampleRecord(id, "ties", workflow.StatusCancelled, 5*time.Minute)))
		}
		require.NoError(t, s.Save(ctx, sampleRecord("tie-newest", "ties", workflow.StatusCancelled, 6*time.Minute)))

		all, err := s.ListByWorkflow(ctx, "ties", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"tie-newest", "tie-a", "tie-b", "tie-c"}, runIDs(all))

		// 截断点落在同一开始时间的记录之间
		limited, err := s.ListByWorkflow(ctx, "ties", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"tie-newest", "tie-a"}, runIDs(limited))

		byStatus, err := s.ListByStatus(ctx, workflow.StatusCancelled, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"tie-newest", "tie-a", "tie-b"}, runIDs(byStatus))
	})
}

// testRecorderIntegration 通过 HistoryRecorder 写入真实运行记录
func testRecorderIntegration(t *testing.T, s Store) {
	ctx := context.Background()
	calls := 0
	flaky := workflow.AgentFunc(func(context.Context, *workflow.Task, *workflow.ExecutionContext) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return map[string]any{"score": 7}, nil
	})

	recorder := workflow.NewHistoryRecorder(s, nil, workflow.WithStepResults())
	w, err := workflow.NewWorkflowBuilder("scored", workflow.TypeSequential).
		AddStep(flaky, workflow.NewTask("score", "score it"), "score",
			workflow.WithRetryPolicy(workflow.RetryPolicy{MaxAttempts: 2, BackoffFactor: 1})).
		WithObserver(recorder).
		Build(nil)
	require.NoError(t, err)

	_, err = w.Execute(ctx)
	require.NoError(t, err)

	got, err := s.Get(ctx, w.RunID())
	require.NoError(t, err)
	assert.Equal(t, "scored", got.Workflow)
	assert.Equal(t, workflow.StatusCompleted, got.Status)

	step, ok := got.Step("score")
	require.True(t, ok)
	assert.Equal(t, 2, step.Attempts)
	assert.EqualValues(t, 7, step.Result.(map[string]any)["score"])
}
