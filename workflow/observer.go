package workflow

import (
	"context"
	"time"
)

// Observer receives lifecycle callbacks from a running workflow. Callbacks for
// steps of the same parallel round may arrive concurrently.
type Observer interface {
	OnWorkflowStart(ctx context.Context, w *Workflow)
	OnWorkflowEnd(ctx context.Context, w *Workflow, err error)
	OnStepStart(ctx context.Context, w *Workflow, step *WorkflowStep)
	OnStepRetry(ctx context.Context, w *Workflow, step *WorkflowStep, attempt int, wait time.Duration, err error)
	OnStepEnd(ctx context.Context, w *Workflow, step *WorkflowStep, err error)
}

// NopObserver implements Observer with no-ops; embed it to override a subset.
type NopObserver struct{}

func (NopObserver) OnWorkflowStart(context.Context, *Workflow)                {}
func (NopObserver) OnWorkflowEnd(context.Context, *Workflow, error)           {}
func (NopObserver) OnStepStart(context.Context, *Workflow, *WorkflowStep)     {}
func (NopObserver) OnStepEnd(context.Context, *Workflow, *WorkflowStep, error) {}
func (NopObserver) OnStepRetry(context.Context, *Workflow, *WorkflowStep, int, time.Duration, error) {
}

// multiObserver fans callbacks out in registration order.
type multiObserver []Observer

func (m multiObserver) OnWorkflowStart(ctx context.Context, w *Workflow) {
	for _, o := range m {
		o.OnWorkflowStart(ctx, w)
	}
}

func (m multiObserver) OnWorkflowEnd(ctx context.Context, w *Workflow, err error) {
	for _, o := range m {
		o.OnWorkflowEnd(ctx, w, err)
	}
}

func (m multiObserver) OnStepStart(ctx context.Context, w *Workflow, step *WorkflowStep) {
	for _, o := range m {
		o.OnStepStart(ctx, w, step)
	}
}

func (m multiObserver) OnStepRetry(ctx context.Context, w *Workflow, step *WorkflowStep, attempt int, wait time.Duration, err error) {
	for _, o := range m {
		o.OnStepRetry(ctx, w, step, attempt, wait, err)
	}
}

func (m multiObserver) OnStepEnd(ctx context.Context, w *Workflow, step *WorkflowStep, err error) {
	for _, o := range m {
		o.OnStepEnd(ctx, w, step, err)
	}
}
