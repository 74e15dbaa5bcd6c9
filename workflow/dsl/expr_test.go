package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Expression evaluation
// =============================================================================

func TestExpression_Eval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		expr     string
		vars     map[string]any
		expected bool
	}{
		// --- Comparison operators ---
		{"greater than true", `score > 0.8`, map[string]any{"score": 0.9}, true},
		{"greater than false", `score > 0.8`, map[string]any{"score": 0.5}, false},
		{"int against float", `count >= 10`, map[string]any{"count": 10}, true},
		{"less or equal", `count <= 5`, map[string]any{"count": int64(3)}, true},
		{"equal string", `status == "active"`, map[string]any{"status": "active"}, true},
		{"single quoted", `status == 'active'`, map[string]any{"status": "active"}, true},
		{"not equal", `count != 0`, map[string]any{"count": 0}, false},
		{"bool equality", `approved == true`, map[string]any{"approved": true}, true},
		{"negative number", `delta > -1`, map[string]any{"delta": 0}, true},

		// --- Logical operators ---
		{"and", `a > 1 && b < 5`, map[string]any{"a": 2, "b": 3}, true},
		{"and false", `a > 1 && b < 5`, map[string]any{"a": 2, "b": 7}, false},
		{"or", `a > 10 || b == "x"`, map[string]any{"a": 2, "b": "x"}, true},
		{"not", `!done`, map[string]any{"done": false}, true},
		{"parentheses", `!(a > 1 || b > 1)`, map[string]any{"a": 0, "b": 0}, true},

		// --- Field access ---
		{"dot path", `result.score >= 0.5`, map[string]any{"result": map[string]any{"score": 0.7}}, true},
		{"typed map path", `meta.region == "eu"`, map[string]any{"meta": map[string]string{"region": "eu"}}, true},
		{"missing path is nil", `missing.value == null`, map[string]any{}, true},
		{"hyphenated step name", `fetch-data.rows > 0`, map[string]any{"fetch-data": map[string]any{"rows": 3}}, true},

		// --- Membership ---
		{"in []any", `"research" in planning.required_capabilities`,
			map[string]any{"planning": map[string]any{"required_capabilities": []any{"research", "writing"}}}, true},
		{"in []string", `"coding" in caps`, map[string]any{"caps": []string{"research"}}, false},
		{"in list literal", `status in ["done", "skipped"]`, map[string]any{"status": "skipped"}, true},
		{"number in list literal", `code in [200, 204]`, map[string]any{"code": 204}, true},
		{"in map keys", `"eu" in regions`, map[string]any{"regions": map[string]int{"eu": 1}}, true},
		{"substring", `"err" in message`, map[string]any{"message": "stderr output"}, true},
		{"in nil", `"x" in nothing`, map[string]any{}, false},
		{"not in", `!("x" in tags)`, map[string]any{"tags": []any{"y"}}, true},

		// --- Truthiness ---
		{"bare truthy path", `result`, map[string]any{"result": "yes"}, true},
		{"empty list is false", `items`, map[string]any{"items": []any{}}, false},
		{"non-empty map is true", `data`, map[string]any{"data": map[string]any{"k": 1}}, true},
		{"zero is false", `n`, map[string]any{"n": 0}, false},
		{"nil step result", `skipped_step`, map[string]any{"skipped_step": nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := CompileExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, expr.Eval(tt.vars))
		})
	}
}

func TestCompileExpression_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		expr string
	}{
		{"empty", "   "},
		{"unterminated string", `status == "active`},
		{"dangling operator", `a ==`},
		{"unclosed paren", `(a > 1`},
		{"unclosed list", `a in [1, 2`},
		{"stray token", `a b`},
		{"bad character", `a # b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileExpression(tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestExpression_Paths(t *testing.T) {
	t.Parallel()
	expr, err := CompileExpression(`"x" in planning.caps && vars.threshold < score.value`)
	require.NoError(t, err)
	assert.Equal(t, []string{"planning.caps", "vars.threshold", "score.value"}, expr.Paths())
	assert.Equal(t, `"x" in planning.caps && vars.threshold < score.value`, expr.String())
}

func TestExpression_ShortCircuit(t *testing.T) {
	t.Parallel()
	// the right side would compare nil, short-circuit keeps the result stable
	expr, err := CompileExpression(`false && missing > 1 || true`)
	require.NoError(t, err)
	assert.True(t, expr.Eval(nil))
	assert.Equal(t, true, expr.Value(nil))
}

// =============================================================================
// tokenize unit tests
// =============================================================================

func TestTokenize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		expr     string
		expected []token
	}{
		{
			name: "simple comparison",
			expr: `score > 0.8`,
			expected: []token{
				{tkIdent, "score"},
				{tkOp, ">"},
				{tkNumber, "0.8"},
			},
		},
		{
			name: "membership with list",
			expr: `s in ["a", -1]`,
			expected: []token{
				{tkIdent, "s"},
				{tkOp, "in"},
				{tkLBracket, "["},
				{tkString, "a"},
				{tkComma, ","},
				{tkNumber, "-1"},
				{tkRBracket, "]"},
			},
		},
		{
			name: "escaped quote",
			expr: `"say \"hi\""`,
			expected: []token{
				{tkString, `say "hi"`},
			},
		},
		{
			name: "dot notation identifier",
			expr: `result.score`,
			expected: []token{
				{tkIdent, "result.score"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := tokenize(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tokens)
		})
	}
}

// =============================================================================
// resolvePath unit tests
// =============================================================================

func TestResolvePath(t *testing.T) {
	t.Parallel()
	vars := map[string]any{
		"simple": "hello",
		"nested": map[string]any{
			"value": 42,
			"deep": map[string]any{
				"item": "found",
			},
		},
		"typed": map[string][]string{"caps": {"a"}},
	}

	tests := []struct {
		name     string
		path     []string
		expected any
	}{
		{"simple key", []string{"simple"}, "hello"},
		{"nested key", []string{"nested", "value"}, 42},
		{"deep nested key", []string{"nested", "deep", "item"}, "found"},
		{"typed map", []string{"typed", "caps"}, []string{"a"}},
		{"missing key", []string{"missing"}, nil},
		{"through scalar", []string{"simple", "x"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolvePath(tt.path, vars))
		})
	}
}
