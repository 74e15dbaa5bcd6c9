package workflow

import (
	"context"

	"go.uber.org/zap"
)

// iterativeStrategy repeats passes over all steps until a pass executes no
// step for the first time, or MaxIterations passes have run.
//
// Every pass re-executes each step whose dependencies have executed at least
// once, including steps that already ran in earlier passes.
type iterativeStrategy struct{}

func (iterativeStrategy) run(ctx context.Context, w *Workflow) error {
	executed := make(map[string]bool, len(w.steps))

	for pass := 1; pass <= w.maxIterations; pass++ {
		w.rounds.Add(1)
		progressed := false

		for _, s := range w.steps {
			if !w.depsSatisfied(s, executed) {
				continue
			}
			if err := w.runStep(ctx, s); err != nil {
				return err
			}
			if !executed[s.name] {
				executed[s.name] = true
				progressed = true
			}
		}

		if !progressed {
			w.logger.Debug("iterative workflow converged",
				zap.Int("iterations", pass),
				zap.Int("executed", len(executed)),
			)
			return nil
		}
	}

	w.logger.Warn("iterative workflow reached max iterations",
		zap.Int("max_iterations", w.maxIterations),
		zap.Int("executed", len(executed)),
		zap.Int("steps", len(w.steps)),
	)
	return nil
}
