// Package store 持久化工作流运行记录（workflow.RunRecord）。
//
// 提供三种后端：
//   - MemoryStore：进程内存储，适用于开发和测试
//   - GormStore：关系数据库（PostgreSQL / MySQL / SQLite）
//   - RedisStore：Redis，适用于多实例部署
//
// 所有后端都实现 workflow.HistorySink，可直接交给 workflow.NewHistoryRecorder。
// 运行记录仅用于诊断与审计，不支持从记录恢复执行。
package store

import (
	"context"
	"errors"
	"slices"

	"github.com/BaSui01/crewflow/workflow"
)

// Common errors
var (
	ErrNotFound     = errors.New("run record not found")
	ErrInvalidInput = errors.New("invalid run record")
	ErrStoreClosed  = errors.New("store is closed")
)

// Backend 存储后端类型
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendGorm   Backend = "database"
	BackendRedis  Backend = "redis"
)

// Store persists and queries run records. List methods return the newest runs
// first; a limit <= 0 returns everything.
type Store interface {
	workflow.HistorySink

	Get(ctx context.Context, runID string) (*workflow.RunRecord, error)
	ListByWorkflow(ctx context.Context, name string, limit int) ([]*workflow.RunRecord, error)
	ListByStatus(ctx context.Context, status workflow.Status, limit int) ([]*workflow.RunRecord, error)
	Close() error
}

func validateRecord(rec *workflow.RunRecord) error {
	if rec == nil || rec.RunID == "" {
		return ErrInvalidInput
	}
	return nil
}

// cloneRecord 深拷贝记录，避免调用方修改已存储的数据
func cloneRecord(rec *workflow.RunRecord) *workflow.RunRecord {
	out := *rec
	out.Steps = slices.Clone(rec.Steps)
	if rec.Metadata != nil {
		out.Metadata = make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// newestFirst 按开始时间倒序，开始时间相同时按 RunID 排序保证结果稳定
func newestFirst(a, b *workflow.RunRecord) int {
	if c := b.StartTime.Compare(a.StartTime); c != 0 {
		return c
	}
	switch {
	case a.RunID < b.RunID:
		return -1
	case a.RunID > b.RunID:
		return 1
	}
	return 0
}

func applyLimit(recs []*workflow.RunRecord, limit int) []*workflow.RunRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
