package workflow

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is the lifecycle state shared by workflows and their steps.
type Status string

const (
	// StatusPending 尚未开始执行
	StatusPending Status = "pending"
	// StatusRunning 正在执行
	StatusRunning Status = "running"
	// StatusCompleted 执行成功（包括条件跳过）
	StatusCompleted Status = "completed"
	// StatusFailed 重试耗尽后失败
	StatusFailed Status = "failed"
	// StatusCancelled 被外部取消
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is expected from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Type selects the scheduling strategy a Workflow runs with.
type Type string

const (
	// TypeSequential runs one ready step at a time in declaration order.
	TypeSequential Type = "sequential"
	// TypeParallel runs each round of ready steps concurrently.
	TypeParallel Type = "parallel"
	// TypeConditional traverses like TypeSequential; steps skip themselves via conditions.
	TypeConditional Type = "conditional"
	// TypeIterative re-runs satisfied steps until a pass adds nothing new.
	TypeIterative Type = "iterative"
	// TypeDynamic asks a StepSelector for the next step to run.
	TypeDynamic Type = "dynamic"
)

var allTypes = []Type{TypeSequential, TypeParallel, TypeConditional, TypeIterative, TypeDynamic}

// ParseType parses a case-insensitive workflow type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown workflow type: %q", s)
}

// DefaultMaxIterations caps the iterative strategy.
const DefaultMaxIterations = 10

// RetryPolicy controls how often a failing step is re-invoked and how long it
// waits in between. The wait before attempt n+1 is Delay * BackoffFactor^(n-1).
type RetryPolicy struct {
	MaxAttempts   int           `json:"max_attempts" yaml:"max_attempts"`
	Delay         time.Duration `json:"delay" yaml:"delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
}

// DefaultRetryPolicy returns the policy used when a step does not set one:
// three attempts, one second apart, doubling each time.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		Delay:         time.Second,
		BackoffFactor: 2.0,
	}
}

// NoRetry runs a step exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, BackoffFactor: 1}
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be >= 1, got %d", ErrInvalidRetryPolicy, p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("%w: delay must be >= 0, got %v", ErrInvalidRetryPolicy, p.Delay)
	}
	if p.BackoffFactor < 1 {
		return fmt.Errorf("%w: backoff_factor must be >= 1, got %v", ErrInvalidRetryPolicy, p.BackoffFactor)
	}
	return nil
}

// MaxBackoff caps RetryPolicy.Backoff.
const MaxBackoff = time.Duration(math.MaxInt64)

// Backoff returns the wait after the given number of failed attempts (1-based),
// saturating at MaxBackoff.
func (p RetryPolicy) Backoff(failedAttempts int) time.Duration {
	if failedAttempts < 1 || p.Delay <= 0 {
		return 0
	}
	d := float64(p.Delay)
	for i := 1; i < failedAttempts; i++ {
		d *= p.BackoffFactor
		if d >= float64(MaxBackoff) {
			return MaxBackoff
		}
	}
	return time.Duration(d)
}
