package workflow

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// parallelStrategy runs the workflow in rounds. Each round dispatches the
// ready steps concurrently, capped at MaxConcurrency; surplus ready steps wait
// for the next round instead of filling slots as siblings finish.
type parallelStrategy struct{}

func (parallelStrategy) run(ctx context.Context, w *Workflow) error {
	completed := make(map[string]bool, len(w.steps))

	for len(completed) < len(w.steps) {
		ready := make([]*WorkflowStep, 0, len(w.steps)-len(completed))
		for _, s := range w.steps {
			if !completed[s.name] && w.depsSatisfied(s, completed) {
				ready = append(ready, s)
			}
		}

		if len(ready) == 0 {
			// 每轮都等待全部完成，剩余步骤无一就绪即意味着存在环
			remaining := make([]*WorkflowStep, 0, len(w.steps)-len(completed))
			for _, s := range w.steps {
				if !completed[s.name] {
					remaining = append(remaining, s)
				}
			}
			return w.circularError(remaining)
		}

		if len(ready) > w.maxConcurrency {
			ready = ready[:w.maxConcurrency]
		}

		round := w.rounds.Add(1)
		w.logger.Debug("dispatching parallel round",
			zap.Int32("round", round),
			zap.Strings("steps", stepNames(ready)),
		)

		// 不使用 WithContext：同轮次的兄弟步骤在首个失败后继续运行至结束
		var g errgroup.Group
		for _, s := range ready {
			s := s
			g.Go(func() error {
				return w.runStep(ctx, s)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, s := range ready {
			completed[s.name] = true
		}
	}
	return nil
}

func stepNames(steps []*WorkflowStep) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	return names
}
