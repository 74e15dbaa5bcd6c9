package workflow

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// StepSelector picks the next step for a dynamic workflow from the ready,
// not yet executed steps (never empty, declaration order). Returning nil ends
// the run early.
type StepSelector func(ctx context.Context, ready []*WorkflowStep, memory map[string]any) (*WorkflowStep, error)

// FirstReady is the default StepSelector.
func FirstReady(_ context.Context, ready []*WorkflowStep, _ map[string]any) (*WorkflowStep, error) {
	return ready[0], nil
}

// dynamicStrategy asks the selector for one ready step at a time until no
// candidate remains.
type dynamicStrategy struct{}

func (dynamicStrategy) run(ctx context.Context, w *Workflow) error {
	executed := make(map[string]bool, len(w.steps))

	for {
		var ready []*WorkflowStep
		for _, s := range w.steps {
			if !executed[s.name] && w.depsSatisfied(s, executed) {
				ready = append(ready, s)
			}
		}
		if len(ready) == 0 {
			break
		}

		next, err := w.selector(ctx, ready, w.memory.Snapshot())
		if err != nil {
			return fmt.Errorf("select next step: %w", err)
		}
		if next == nil {
			w.logger.Debug("selector ended dynamic workflow", zap.Int("ready", len(ready)))
			break
		}
		if !slices.Contains(ready, next) {
			return fmt.Errorf("select next step: %q is not ready", next.name)
		}

		w.rounds.Add(1)
		if err := w.runStep(ctx, next); err != nil {
			return err
		}
		executed[next.name] = true
	}

	if len(executed) < len(w.steps) {
		w.logger.Debug("dynamic workflow left steps unexecuted",
			zap.Int("executed", len(executed)),
			zap.Int("steps", len(w.steps)),
		)
	}
	return nil
}
