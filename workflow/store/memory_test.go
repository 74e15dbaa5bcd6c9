package store

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/testutil"
	"github.com/BaSui01/crewflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_RecorderIntegration(t *testing.T) {
	testRecorderIntegration(t, NewMemoryStore())
}

func TestMemoryStore_StoresCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := sampleRecord("r1", "wf", workflow.StatusCompleted, 0)
	require.NoError(t, s.Save(ctx, rec))
	rec.Steps[0].Name = "mutated"
	rec.Metadata["max_concurrency"] = 99

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "fetch", got.Steps[0].Name)
	assert.Equal(t, 5, got.Metadata["max_concurrency"])

	got.Status = workflow.StatusFailed
	again, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, again.Status)
	testutil.AssertJSONEqual(t, sampleRecord("r1", "wf", workflow.StatusCompleted, 0), again)
}

func TestMemoryStore_ListByTimeRange(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, sampleRecord(id, "wf", workflow.StatusCompleted, time.Duration(i)*time.Hour)))
	}

	got, err := s.ListByTimeRange(ctx, baseTime.Add(30*time.Minute), baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, runIDs(got))
	assert.Equal(t, 3, s.Len())
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	ctx := context.Background()

	assert.ErrorIs(t, s.Save(ctx, sampleRecord("r1", "wf", workflow.StatusCompleted, 0)), ErrStoreClosed)
	_, err := s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.ListByWorkflow(ctx, "wf", 0)
	assert.ErrorIs(t, err, ErrStoreClosed)
}
