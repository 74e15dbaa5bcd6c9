package agents

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/crewflow/workflow"
	"github.com/BaSui01/crewflow/workflow/dsl"
)

// 编译期检查：Registry 可作为 DSL 的 AgentResolver
var _ dsl.AgentResolver = (*Registry)(nil)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))

	require.NoError(t, r.Register("writer", Static("", "draft")))
	require.NoError(t, r.Register("anon", workflow.AgentFunc(func(context.Context, *workflow.Task, *workflow.ExecutionContext) (any, error) {
		return 1, nil
	})))

	a, ok := r.Resolve("anon")
	require.True(t, ok)
	assert.Equal(t, "anon", workflow.AgentName(a))

	_, ok = r.Resolve("ghost")
	assert.False(t, ok)

	_, err := r.Get("ghost")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	assert.Equal(t, []string{"anon", "writer"}, r.Names())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("a", Echo("a")))

	assert.ErrorIs(t, r.Register("a", Echo("a")), ErrAgentExists)
	assert.Error(t, r.Register("", Echo("x")))
	assert.Error(t, r.Register("nil", nil))
	assert.Panics(t, func() { r.MustRegister("a", Echo("a")) })
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(nil).MustRegister("a", Echo("a"))
	require.NoError(t, r.Unregister("a"))
	assert.ErrorIs(t, r.Unregister("a"), ErrAgentNotFound)
	assert.Zero(t, r.Len())
}

func TestRegistry_Wrap(t *testing.T) {
	r := NewRegistry(nil).
		MustRegister("a", Static("a", 1)).
		MustRegister("b", Static("b", 2))

	var wrapped []string
	var mu sync.Mutex
	r.Wrap(func(name string, agent workflow.Agent) workflow.Agent {
		mu.Lock()
		wrapped = append(wrapped, name)
		mu.Unlock()
		return NewMapped(agent, WithOutputMapper(func(v any) (any, error) {
			return v.(int) * 10, nil
		}))
	})
	assert.ElementsMatch(t, []string{"a", "b"}, wrapped)

	b, err := r.Get("b")
	require.NoError(t, err)
	out, err := b.Execute(context.Background(), workflow.NewTask("t", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, 20, out)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			_ = r.Register(name, Echo(name))
			_, _ = r.Resolve(name)
			_ = r.Names()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())
}

func TestRegistry_DrivesDSLWorkflow(t *testing.T) {
	r := NewRegistry(nil).
		MustRegister("planner", Planner("planner")).
		MustRegister("researcher", Static("researcher", "notes")).
		MustRegister("coder", Static("coder", "patch")).
		MustRegister("integrator", Func("integrator", func(_ context.Context, task *workflow.Task, _ *workflow.ExecutionContext) (any, error) {
			mem := task.WorkflowMemory()
			if mem["coding_specialist"] != nil {
				return nil, errors.New("coding should have been skipped")
			}
			return mem["research_specialist"], nil
		}))

	src := `
name: crew
type: dynamic
steps:
  - name: planning
    agent: planner
    task:
      parameters:
        required_capabilities: research
  - name: research_specialist
    agent: researcher
    depends_on: [planning]
    condition: '"research" in planning.required_capabilities'
  - name: coding_specialist
    agent: coder
    depends_on: [planning]
    condition: '"coding" in planning.required_capabilities'
  - name: integration
    agent: integrator
    depends_on: [research_specialist, coding_specialist]
`
	b, err := dsl.NewParser(r).Parse([]byte(src))
	require.NoError(t, err)
	w, err := b.Build(nil)
	require.NoError(t, err)

	out, err := w.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "notes", out["integration"])
	assert.Nil(t, out["coding_specialist"])
}
