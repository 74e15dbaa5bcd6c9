package workflow

import "context"

// strategy schedules the steps of one workflow. Each Type has exactly one
// implementation; all of them execute steps through Workflow.runStep.
type strategy interface {
	run(ctx context.Context, w *Workflow) error
}

var strategies = map[Type]strategy{
	TypeSequential:  sequentialStrategy{},
	TypeConditional: sequentialStrategy{},
	TypeParallel:    parallelStrategy{},
	TypeIterative:   iterativeStrategy{},
	TypeDynamic:     dynamicStrategy{},
}

// strategyFor returns the scheduler for t. Build rejects unknown types, so
// the sequential fallback is only reachable for zero-value workflows.
func strategyFor(t Type) strategy {
	if s, ok := strategies[t]; ok {
		return s
	}
	return sequentialStrategy{}
}
