package workflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StepRecord records one execution of a step. Iterative workflows produce one
// record per pass that ran the step.
type StepRecord struct {
	Name      string        `json:"name"`
	Agent     string        `json:"agent"`
	Status    Status        `json:"status"`
	Attempts  int           `json:"attempts"`
	Skipped   bool          `json:"skipped"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Result    any           `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// RunRecord records the complete execution path of one workflow run.
type RunRecord struct {
	RunID     string         `json:"run_id"`
	Workflow  string         `json:"workflow"`
	Type      Type           `json:"type"`
	Status    Status         `json:"status"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  time.Duration  `json:"duration"`
	Rounds    int            `json:"rounds"`
	Steps     []StepRecord   `json:"steps"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Step returns the last record for the named step.
func (r *RunRecord) Step(name string) (StepRecord, bool) {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].Name == name {
			return r.Steps[i], true
		}
	}
	return StepRecord{}, false
}

// HistorySink receives finished run records.
type HistorySink interface {
	Save(ctx context.Context, rec *RunRecord) error
}

// HistorySinkFunc adapts a function to HistorySink.
type HistorySinkFunc func(ctx context.Context, rec *RunRecord) error

func (f HistorySinkFunc) Save(ctx context.Context, rec *RunRecord) error {
	return f(ctx, rec)
}

// HistoryRecorder is an Observer that assembles a RunRecord per run and hands
// it to a sink when the run ends. One recorder can observe many workflows.
type HistoryRecorder struct {
	NopObserver

	sink          HistorySink
	logger        *zap.Logger
	recordResults bool

	mu      sync.Mutex
	active  map[string]*RunRecord
	started map[string]time.Time
}

// HistoryOption configures a HistoryRecorder.
type HistoryOption func(*HistoryRecorder)

// WithStepResults stores step results in the records. Results must then be
// serializable by whatever sink persists them.
func WithStepResults() HistoryOption {
	return func(r *HistoryRecorder) {
		r.recordResults = true
	}
}

// NewHistoryRecorder creates a recorder writing into sink.
func NewHistoryRecorder(sink HistorySink, logger *zap.Logger, opts ...HistoryOption) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &HistoryRecorder{
		sink:    sink,
		logger:  logger.With(zap.String("component", "workflow_history")),
		active:  make(map[string]*RunRecord),
		started: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HistoryRecorder) OnWorkflowStart(_ context.Context, w *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[w.RunID()] = &RunRecord{
		RunID:     w.RunID(),
		Workflow:  w.Name(),
		Type:      w.Type(),
		Status:    StatusRunning,
		StartTime: w.StartTime(),
		Steps:     make([]StepRecord, 0, len(w.steps)),
		Metadata:  map[string]any{"max_concurrency": w.MaxConcurrency()},
	}
}

func (r *HistoryRecorder) OnStepStart(_ context.Context, w *Workflow, step *WorkflowStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[w.RunID()+"/"+step.Name()] = time.Now()
}

func (r *HistoryRecorder) OnStepEnd(_ context.Context, w *Workflow, step *WorkflowStep, err error) {
	end := time.Now()
	key := w.RunID() + "/" + step.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.active[w.RunID()]
	if !ok {
		return
	}
	start, ok := r.started[key]
	if !ok {
		start = step.StartTime()
	}
	delete(r.started, key)

	sr := StepRecord{
		Name:      step.Name(),
		Agent:     AgentName(step.Agent()),
		Status:    step.Status(),
		Attempts:  step.Attempts(),
		Skipped:   step.Skipped(),
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
	}
	if err != nil {
		sr.Error = err.Error()
	} else if r.recordResults {
		sr.Result = step.Result()
	}
	rec.Steps = append(rec.Steps, sr)
}

func (r *HistoryRecorder) OnWorkflowEnd(ctx context.Context, w *Workflow, err error) {
	r.mu.Lock()
	rec, ok := r.active[w.RunID()]
	delete(r.active, w.RunID())
	r.mu.Unlock()
	if !ok {
		return
	}

	rec.Status = w.Status()
	rec.EndTime = w.EndTime()
	rec.Duration = w.Duration()
	rec.Rounds = w.Rounds()
	if err != nil {
		rec.Error = err.Error()
	}

	if r.sink == nil {
		return
	}
	// 运行被取消时仍需落盘
	if serr := r.sink.Save(context.WithoutCancel(ctx), rec); serr != nil {
		r.logger.Warn("failed to save run record",
			zap.String("run_id", rec.RunID),
			zap.String("workflow", rec.Workflow),
			zap.Error(serr),
		)
	}
}
