package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/BaSui01/crewflow/testutil"
	"github.com/BaSui01/crewflow/testutil/mocks"
	"github.com/BaSui01/crewflow/workflow"
)

func TestRateLimited_Throttles(t *testing.T) {
	a := NewRateLimited(Static("slow", "ok"), 20, 1)
	assert.Equal(t, "slow", a.Name())

	start := time.Now()
	for i := 0; i < 3; i++ {
		out, err := a.Execute(context.Background(), workflow.NewTask("t", ""), nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}
	// 首个令牌立即可用，其余两个各等待约 50ms
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimited_ContextCancelled(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())

	a := WithLimiter(Static("s", 1), limiter)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Execute(ctx, workflow.NewTask("t", ""), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait for s")
}

func TestRateLimited_DeadlineTooShort(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())

	// 下一个令牌在截止时间之后才可用，Wait 立即返回错误
	ctx := testutil.TestContextWithTimeout(t, 50*time.Millisecond)
	start := time.Now()
	_, err := WithLimiter(Static("s", 1), limiter).Execute(ctx, workflow.NewTask("t", ""), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait for s")
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimited_SharedLimiterInWorkflow(t *testing.T) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	tasks := []*workflow.Task{workflow.NewTask("a", ""), workflow.NewTask("b", "")}

	w, err := workflow.NewParallelProcessingWorkflow("limited",
		[]workflow.Agent{WithLimiter(Echo("e1"), limiter), WithLimiter(Echo("e2"), limiter)},
		tasks, 2, nil)
	require.NoError(t, err)

	out, err := w.Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRateLimited_DelegatesToInner(t *testing.T) {
	inner := mocks.NewMockAgent("inner").WithResult("done")
	a := NewRateLimited(inner, 100, 0)

	out, err := a.Execute(context.Background(), workflow.NewTask("t", "desc"), nil)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, "inner", a.Name())

	call, ok := inner.LastCall()
	require.True(t, ok)
	assert.Equal(t, "desc", call.Task.Description)
}
