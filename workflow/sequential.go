package workflow

import (
	"context"
	"slices"
)

// sequentialStrategy runs one ready step at a time, always picking the first
// pending step (declaration order) whose dependencies have all executed.
// TypeConditional shares it; the skip logic lives in WorkflowStep.
type sequentialStrategy struct{}

func (sequentialStrategy) run(ctx context.Context, w *Workflow) error {
	executed := make(map[string]bool, len(w.steps))
	pending := slices.Clone(w.steps)

	for len(pending) > 0 {
		idx := slices.IndexFunc(pending, func(s *WorkflowStep) bool {
			return w.depsSatisfied(s, executed)
		})
		if idx < 0 {
			return w.circularError(pending)
		}

		step := pending[idx]
		w.rounds.Add(1)
		if err := w.runStep(ctx, step); err != nil {
			return err
		}
		executed[step.name] = true
		pending = slices.Delete(pending, idx, idx+1)
	}
	return nil
}
