package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/crewflow/workflow"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ 数据库模型
// =============================================================================

// RunModel is the workflow_runs row.
type RunModel struct {
	RunID      string      `gorm:"primaryKey;size:64" json:"run_id"`
	Workflow   string      `gorm:"size:255;index;not null" json:"workflow"`
	Type       string      `gorm:"size:32" json:"type"`
	Status     string      `gorm:"size:32;index" json:"status"`
	StartTime  time.Time   `gorm:"index" json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	DurationNs int64       `json:"duration_ns"`
	Rounds     int         `json:"rounds"`
	Error      string      `gorm:"type:text" json:"error,omitempty"`
	Metadata   string      `gorm:"type:text" json:"metadata,omitempty"`
	Steps      []StepModel `gorm:"foreignKey:RunID;references:RunID" json:"steps,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (RunModel) TableName() string { return "workflow_runs" }

// StepModel is the workflow_step_runs row. Seq keeps the order steps finished in.
type StepModel struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"size:64;index;not null" json:"run_id"`
	Seq        int       `json:"seq"`
	Name       string    `gorm:"size:255" json:"name"`
	Agent      string    `gorm:"size:255" json:"agent"`
	Status     string    `gorm:"size:32" json:"status"`
	Attempts   int       `json:"attempts"`
	Skipped    bool      `json:"skipped"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	DurationNs int64     `json:"duration_ns"`
	Result     string    `gorm:"type:text" json:"result,omitempty"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
}

func (StepModel) TableName() string { return "workflow_step_runs" }

// Migrate 自动迁移运行记录相关表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&RunModel{}, &StepModel{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// =============================================================================
// 📦 GormStore
// =============================================================================

// GormStore stores run records in a relational database through GORM.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// GormOption configures a GormStore.
type GormOption func(*GormStore)

// WithGormLogger 设置 logger
func WithGormLogger(logger *zap.Logger) GormOption {
	return func(s *GormStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewGormStore creates a store on db. Call Migrate first, or use OpenGormStore.
func NewGormStore(db *gorm.DB, opts ...GormOption) *GormStore {
	s := &GormStore{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "run_store"), zap.String("backend", string(BackendGorm)))
	return s
}

// OpenGormStore migrates the schema and returns a ready store.
func OpenGormStore(db *gorm.DB, opts ...GormOption) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return NewGormStore(db, opts...), nil
}

// Save replaces the run and its step rows in one transaction.
func (s *GormStore) Save(ctx context.Context, rec *workflow.RunRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	run, err := toRunModel(rec)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", rec.RunID).Delete(&StepModel{}).Error; err != nil {
			return fmt.Errorf("delete step rows: %w", err)
		}
		if err := tx.Where("run_id = ?", rec.RunID).Delete(&RunModel{}).Error; err != nil {
			return fmt.Errorf("delete run row: %w", err)
		}
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}

	s.logger.Debug("run record saved",
		zap.String("run_id", rec.RunID),
		zap.String("workflow", rec.Workflow),
		zap.Int("steps", len(run.Steps)),
	)
	return nil
}

// Get retrieves a run record by ID
func (s *GormStore) Get(ctx context.Context, runID string) (*workflow.RunRecord, error) {
	var run RunModel
	err := s.db.WithContext(ctx).
		Preload("Steps", orderBySeq).
		Where("run_id = ?", runID).
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return fromRunModel(&run)
}

// ListByWorkflow returns the runs of one workflow
func (s *GormStore) ListByWorkflow(ctx context.Context, name string, limit int) ([]*workflow.RunRecord, error) {
	return s.list(ctx, limit, "workflow = ?", name)
}

// ListByStatus returns runs with a specific status
func (s *GormStore) ListByStatus(ctx context.Context, status workflow.Status, limit int) ([]*workflow.RunRecord, error) {
	return s.list(ctx, limit, "status = ?", string(status))
}

// Close is a no-op; the *gorm.DB belongs to the caller.
func (s *GormStore) Close() error { return nil }

func (s *GormStore) list(ctx context.Context, limit int, query string, arg any) ([]*workflow.RunRecord, error) {
	q := s.db.WithContext(ctx).
		Preload("Steps", orderBySeq).
		Where(query, arg).
		Order("start_time DESC").
		Order("run_id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []RunModel
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	result := make([]*workflow.RunRecord, 0, len(runs))
	for i := range runs {
		rec, err := fromRunModel(&runs[i])
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func orderBySeq(db *gorm.DB) *gorm.DB {
	return db.Order("seq")
}

// =============================================================================
// 🔄 模型转换
// =============================================================================

func toRunModel(rec *workflow.RunRecord) (*RunModel, error) {
	run := &RunModel{
		RunID:      rec.RunID,
		Workflow:   rec.Workflow,
		Type:       string(rec.Type),
		Status:     string(rec.Status),
		StartTime:  rec.StartTime,
		EndTime:    rec.EndTime,
		DurationNs: int64(rec.Duration),
		Rounds:     rec.Rounds,
		Error:      rec.Error,
		Steps:      make([]StepModel, 0, len(rec.Steps)),
	}
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		run.Metadata = string(data)
	}

	for i, st := range rec.Steps {
		sm := StepModel{
			RunID:      rec.RunID,
			Seq:        i,
			Name:       st.Name,
			Agent:      st.Agent,
			Status:     string(st.Status),
			Attempts:   st.Attempts,
			Skipped:    st.Skipped,
			StartTime:  st.StartTime,
			EndTime:    st.EndTime,
			DurationNs: int64(st.Duration),
			Error:      st.Error,
		}
		if st.Result != nil {
			data, err := json.Marshal(st.Result)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal result of step %s: %w", st.Name, err)
			}
			sm.Result = string(data)
		}
		run.Steps = append(run.Steps, sm)
	}
	return run, nil
}

func fromRunModel(run *RunModel) (*workflow.RunRecord, error) {
	rec := &workflow.RunRecord{
		RunID:     run.RunID,
		Workflow:  run.Workflow,
		Type:      workflow.Type(run.Type),
		Status:    workflow.Status(run.Status),
		StartTime: run.StartTime,
		EndTime:   run.EndTime,
		Duration:  time.Duration(run.DurationNs),
		Rounds:    run.Rounds,
		Error:     run.Error,
		Steps:     make([]workflow.StepRecord, 0, len(run.Steps)),
	}
	if run.Metadata != "" {
		if err := json.Unmarshal([]byte(run.Metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of run %s: %w", run.RunID, err)
		}
	}

	for _, sm := range run.Steps {
		st := workflow.StepRecord{
			Name:      sm.Name,
			Agent:     sm.Agent,
			Status:    workflow.Status(sm.Status),
			Attempts:  sm.Attempts,
			Skipped:   sm.Skipped,
			StartTime: sm.StartTime,
			EndTime:   sm.EndTime,
			Duration:  time.Duration(sm.DurationNs),
			Error:     sm.Error,
		}
		if sm.Result != "" {
			if err := json.Unmarshal([]byte(sm.Result), &st.Result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal result of step %s: %w", sm.Name, err)
			}
		}
		rec.Steps = append(rec.Steps, st)
	}
	return rec, nil
}
