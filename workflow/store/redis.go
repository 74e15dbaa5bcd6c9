package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/BaSui01/crewflow/workflow"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// KeyPrefix 所有 key 的前缀，默认 "crewflow:"
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// TTL 记录与索引的过期时间，0 表示永不过期
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// RedisStore stores each run as a JSON string and indexes run IDs in sorted
// sets keyed by workflow name and by status, scored by start time.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisStore creates a store on an existing client. The client stays owned
// by the caller.
func NewRedisStore(client redis.UniversalClient, opts RedisOptions, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "crewflow:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: prefix + "run:",
		ttl:       opts.TTL,
		logger:    logger.With(zap.String("component", "run_store"), zap.String("backend", string(BackendRedis))),
	}
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error { return nil }

// dataKey returns the Redis key for a run
func (s *RedisStore) dataKey(runID string) string {
	return s.keyPrefix + "data:" + runID
}

// workflowKey returns the Redis key for a workflow's run index
func (s *RedisStore) workflowKey(name string) string {
	return s.keyPrefix + "workflow:" + name
}

// statusKey returns the Redis key for a status index
func (s *RedisStore) statusKey(status workflow.Status) string {
	return s.keyPrefix + "status:" + string(status)
}

// Save persists a run record and updates its indexes
func (s *RedisStore) Save(ctx context.Context, rec *workflow.RunRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	// Get old record for index cleanup
	old, err := s.Get(ctx, rec.RunID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	score := float64(rec.StartTime.UnixNano())
	member := redis.Z{Score: score, Member: rec.RunID}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(rec.RunID), data, s.ttl)

	if old != nil && old.Status != rec.Status {
		pipe.ZRem(ctx, s.statusKey(old.Status), rec.RunID)
	}
	if old != nil && old.Workflow != rec.Workflow {
		pipe.ZRem(ctx, s.workflowKey(old.Workflow), rec.RunID)
	}
	pipe.ZAdd(ctx, s.workflowKey(rec.Workflow), member)
	pipe.ZAdd(ctx, s.statusKey(rec.Status), member)
	if s.ttl > 0 {
		// 索引跟随最新一条记录续期，过期成员在读取时清理
		pipe.Expire(ctx, s.workflowKey(rec.Workflow), s.ttl)
		pipe.Expire(ctx, s.statusKey(rec.Status), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// Get retrieves a run record by ID
func (s *RedisStore) Get(ctx context.Context, runID string) (*workflow.RunRecord, error) {
	data, err := s.client.Get(ctx, s.dataKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	var rec workflow.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}
	return &rec, nil
}

// ListByWorkflow returns the runs of one workflow
func (s *RedisStore) ListByWorkflow(ctx context.Context, name string, limit int) ([]*workflow.RunRecord, error) {
	return s.listIndex(ctx, s.workflowKey(name), limit)
}

// ListByStatus returns runs with a specific status
func (s *RedisStore) ListByStatus(ctx context.Context, status workflow.Status, limit int) ([]*workflow.RunRecord, error) {
	return s.listIndex(ctx, s.statusKey(status), limit)
}

// listIndex 按分数倒序读取索引。数据已过期的成员会从索引中移除，
// 因此返回的条数可能少于 limit。
func (s *RedisStore) listIndex(ctx context.Context, key string, limit int) ([]*workflow.RunRecord, error) {
	ids, err := s.indexCandidates(ctx, key, limit)
	if err != nil {
		return nil, err
	}

	result := make([]*workflow.RunRecord, 0, len(ids))
	var stale []any
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, key, stale...).Err(); err != nil {
			s.logger.Warn("failed to prune expired runs from index",
				zap.String("key", key),
				zap.Int("count", len(stale)),
				zap.Error(err),
			)
		}
	}
	slices.SortFunc(result, newestFirst)
	return applyLimit(result, limit), nil
}

// indexCandidates 返回前 limit 个成员；截断处分数相同的成员全部带上，
// 由调用方按 newestFirst 排序后再截断。
func (s *RedisStore) indexCandidates(ctx context.Context, key string, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", key, err)
	}

	ids := make([]string, 0, len(zs))
	seen := make(map[string]bool, len(zs))
	for _, z := range zs {
		id := fmt.Sprint(z.Member)
		ids = append(ids, id)
		seen[id] = true
	}
	if limit <= 0 || len(zs) < limit {
		return ids, nil
	}

	boundary := strconv.FormatFloat(zs[len(zs)-1].Score, 'f', -1, 64)
	ties, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: boundary, Max: boundary}).Result()
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", key, err)
	}
	for _, id := range ties {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	return ids, nil
}
