package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

// randomDAG returns n step names with edges only from lower to higher index,
// plus a shuffled declaration order.
func randomDAG(n int, seed int64) (deps map[string][]string, order []string) {
	r := rand.New(rand.NewSource(seed))
	deps = make(map[string][]string, n)
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("n%d", i)
	}
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			if r.Intn(3) == 0 {
				deps[names[i]] = append(deps[names[i]], names[j])
			}
		}
	}
	order = slices.Clone(names)
	r.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return deps, order
}

// Property: on acyclic graphs the sequential strategy visits every step exactly
// once, never before its dependencies.
func TestProperty_SequentialVisitsInDependencyOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("sequential respects depends_on", prop.ForAll(
		func(n int, seed int64) bool {
			deps, order := randomDAG(n, seed)
			var log orderLog

			b := NewWorkflowBuilder("prop-seq", TypeSequential)
			for _, name := range order {
				b.AddStep(log.agent(nil), NewTask(name, ""), name, DependsOn(deps[name]...))
			}
			w, err := b.Build(nil)
			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}
			if _, err := w.Execute(context.Background()); err != nil {
				t.Logf("Execute failed: %v", err)
				return false
			}

			visited := log.Names()
			if len(visited) != n {
				return false
			}
			pos := make(map[string]int, n)
			for i, name := range visited {
				if _, dup := pos[name]; dup {
					return false
				}
				pos[name] = i
			}
			for name, ds := range deps {
				for _, d := range ds {
					if pos[d] > pos[name] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// Property: adding a back edge to an acyclic graph makes sequential, parallel
// and conditional runs fail with a circular dependency; without it they never do.
func TestProperty_CycleDetection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	for _, typ := range []Type{TypeSequential, TypeParallel, TypeConditional} {
		properties.Property(fmt.Sprintf("%s detects cycles", typ), prop.ForAll(
			func(n int, seed int64, withCycle bool) bool {
				deps, order := randomDAG(n, seed)
				if withCycle {
					// first node now waits on the last, closing n0 -> ... -> n{n-1} -> n0
					last := fmt.Sprintf("n%d", n-1)
					for i := 1; i < n; i++ {
						name := fmt.Sprintf("n%d", i)
						prev := fmt.Sprintf("n%d", i-1)
						if !slices.Contains(deps[name], prev) {
							deps[name] = append(deps[name], prev)
						}
					}
					deps["n0"] = append(deps["n0"], last)
				}

				b := NewWorkflowBuilder("prop-cycle", typ).SetMaxConcurrency(3)
				for _, name := range order {
					b.AddStep(newAgent(name, name), NewTask(name, ""), name, DependsOn(deps[name]...))
				}
				w, err := b.Build(nil)
				if err != nil {
					return false
				}
				_, err = w.Execute(context.Background())
				return withCycle == errors.Is(err, ErrCircularDependency)
			},
			gen.IntRange(2, 8),
			gen.Int64(),
			gen.Bool(),
		))
	}

	properties.TestingRun(t)
}

// Property: k failures followed by success end COMPLETED with k+1 attempts;
// failing on every call ends FAILED after exactly MaxAttempts.
func TestProperty_RetryAttempts(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxAttempts := rapid.IntRange(1, 6).Draw(rt, "maxAttempts")
		failures := rapid.IntRange(0, 8).Draw(rt, "failures")

		agent := newAgent("flaky", "done")
		agent.failures = failures
		step := NewWorkflowStep("s", agent, NewTask("t", ""), WithRetryPolicy(RetryPolicy{
			MaxAttempts:   maxAttempts,
			BackoffFactor: 1,
		}))

		_, err := step.Execute(context.Background(), nil, NewMemory())
		if failures < maxAttempts {
			if err != nil {
				rt.Fatalf("expected success, got %v", err)
			}
			if step.Status() != StatusCompleted || step.Attempts() != failures+1 {
				rt.Fatalf("status=%s attempts=%d, want completed/%d", step.Status(), step.Attempts(), failures+1)
			}
			return
		}
		if !errors.Is(err, errBoom) {
			rt.Fatalf("expected original error, got %v", err)
		}
		if step.Status() != StatusFailed || step.Attempts() != maxAttempts {
			rt.Fatalf("status=%s attempts=%d, want failed/%d", step.Status(), step.Attempts(), maxAttempts)
		}
	})
}

// Property: memory[name] equals the step result for every strategy and any
// mix of skipped and executed steps.
func TestProperty_MemoryEqualsResult(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		typ := rapid.SampledFrom(allTypes).Draw(rt, "type")
		n := rapid.IntRange(1, 8).Draw(rt, "steps")
		seed := rapid.Int64().Draw(rt, "seed")
		deps, order := randomDAG(n, seed)

		b := NewWorkflowBuilder("prop-mem", typ).SetMaxConcurrency(rapid.IntRange(1, 4).Draw(rt, "maxConcurrency"))
		for _, name := range order {
			opts := []StepOption{DependsOn(deps[name]...)}
			if rapid.Bool().Draw(rt, "skip_"+name) {
				opts = append(opts, When(func(map[string]any) (bool, error) { return false, nil }))
			}
			b.AddStep(newAgent(name, "result_"+name), NewTask(name, ""), name, opts...)
		}
		w, err := b.Build(nil)
		if err != nil {
			rt.Fatalf("build: %v", err)
		}
		out, err := w.Execute(context.Background())
		if err != nil {
			rt.Fatalf("execute: %v", err)
		}
		for _, s := range w.Steps() {
			v, ok := out[s.Name()]
			if !ok {
				rt.Fatalf("step %s missing from memory", s.Name())
			}
			if v != s.Result() {
				rt.Fatalf("step %s: memory %v != result %v", s.Name(), v, s.Result())
			}
		}
	})
}
