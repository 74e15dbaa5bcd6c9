package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/testutil"
	"github.com/BaSui01/crewflow/workflow"
)

// =============================================================================
// 🧪 RedisStore 测试
// =============================================================================

func setupTestRedis(t *testing.T, opts RedisOptions) (*miniredis.Miniredis, *RedisStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client, opts, zap.NewNop())
}

func TestRedisStore_Contract(t *testing.T) {
	_, s := setupTestRedis(t, RedisOptions{})
	require.NoError(t, s.Ping(context.Background()))
	testStoreContract(t, s)
}

func TestRedisStore_RecorderIntegration(t *testing.T) {
	_, s := setupTestRedis(t, RedisOptions{})
	testRecorderIntegration(t, s)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr, s := setupTestRedis(t, RedisOptions{KeyPrefix: "test:"})
	rec := sampleRecord("r1", "wf", workflow.StatusFailed, 0)
	require.NoError(t, s.Save(context.Background(), rec))

	raw, err := mr.Get("test:run:data:r1")
	require.NoError(t, err)
	assert.JSONEq(t, testutil.MustJSON(rec), raw)

	members, err := mr.ZMembers("test:run:workflow:wf")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, members)

	members, err = mr.ZMembers("test:run:status:failed")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, members)
}

func TestRedisStore_TTL(t *testing.T) {
	mr, s := setupTestRedis(t, RedisOptions{TTL: time.Minute})
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleRecord("r1", "wf", workflow.StatusCompleted, 0)))

	assert.Equal(t, time.Minute, mr.TTL("crewflow:run:data:r1"))
	assert.Equal(t, time.Minute, mr.TTL("crewflow:run:workflow:wf"))

	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	recs, err := s.ListByWorkflow(ctx, "wf", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRedisStore_PrunesExpiredIndexMembers(t *testing.T) {
	mr, s := setupTestRedis(t, RedisOptions{})
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleRecord("old", "wf", workflow.StatusCompleted, 0)))
	require.NoError(t, s.Save(ctx, sampleRecord("new", "wf", workflow.StatusCompleted, time.Minute)))

	mr.Del("crewflow:run:data:old")

	recs, err := s.ListByWorkflow(ctx, "wf", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, runIDs(recs))

	members, err := mr.ZMembers("crewflow:run:workflow:wf")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, members)
}

func TestRedisStore_CorruptRecord(t *testing.T) {
	mr, s := setupTestRedis(t, RedisOptions{})
	require.NoError(t, mr.Set("crewflow:run:data:bad", "{not json"))

	_, err := s.Get(context.Background(), "bad")
	assert.ErrorContains(t, err, "unmarshal")
}
