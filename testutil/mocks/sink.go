package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/crewflow/workflow"
)

// MockHistorySink 记录收到的 RunRecord，可注入写入错误
type MockHistorySink struct {
	mu      sync.Mutex
	records []*workflow.RunRecord
	err     error
}

// NewMockHistorySink 创建 MockHistorySink
func NewMockHistorySink() *MockHistorySink {
	return &MockHistorySink{}
}

// WithError 之后的 Save 都返回 err，记录不保存
func (s *MockHistorySink) WithError(err error) *MockHistorySink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Save implements workflow.HistorySink.
func (s *MockHistorySink) Save(ctx context.Context, rec *workflow.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

// Records 返回已保存的记录
func (s *MockHistorySink) Records() []*workflow.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*workflow.RunRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Last 返回最后一条记录
func (s *MockHistorySink) Last() (*workflow.RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil, false
	}
	return s.records[len(s.records)-1], true
}
