package dsl

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// Expression is a compiled condition. It is safe for concurrent use.
//
// Grammar:
//
//	or      := and ("||" and)*
//	and     := cmp ("&&" cmp)*
//	cmp     := unary (("=="|"!="|">"|"<"|">="|"<="|"in") unary)?
//	unary   := "!" unary | primary
//	primary := number | string | true | false | null | path | list | "(" or ")"
//	list    := "[" (or ("," or)*)? "]"
//
// Paths use dot notation: planning.required_capabilities looks up
// vars["planning"]["required_capabilities"]. Unknown paths resolve to nil.
type Expression struct {
	source string
	root   exprNode
}

// CompileExpression parses src once so it can be evaluated many times.
func CompileExpression(src string) (*Expression, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil {
		return nil, fmt.Errorf("unexpected token %q at position %d", t.value, p.pos)
	}
	return &Expression{source: src, root: root}, nil
}

// Eval evaluates the expression and converts the result to a boolean.
func (e *Expression) Eval(vars map[string]any) bool {
	return toBool(e.root.eval(vars))
}

// Value evaluates the expression without boolean conversion.
func (e *Expression) Value(vars map[string]any) any {
	return e.root.eval(vars)
}

// Paths returns the variable paths the expression reads, in source order.
func (e *Expression) Paths() []string {
	var out []string
	e.root.paths(&out)
	return out
}

func (e *Expression) String() string { return e.source }

// =============================================================================
// Tokenizer
// =============================================================================

type tokenKind int

const (
	tkNumber   tokenKind = iota // 42, 0.8, -3.14
	tkString                    // "hello"
	tkIdent                     // path, true, false, null, in
	tkOp                        // ==, !=, >, <, >=, <=, &&, ||, !
	tkLParen                    // (
	tkRParen                    // )
	tkLBracket                  // [
	tkRBracket                  // ]
	tkComma                     // ,
)

type token struct {
	kind  tokenKind
	value string
}

var punctuation = map[rune]tokenKind{
	'(': tkLParen,
	')': tkRParen,
	'[': tkLBracket,
	']': tkRBracket,
	',': tkComma,
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)

	for i := 0; i < len(runes); {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}

		if kind, ok := punctuation[ch]; ok {
			tokens = append(tokens, token{kind, string(ch)})
			i++
			continue
		}

		if ch == '"' || ch == '\'' {
			s, n, err := readString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, s})
			i = n
			continue
		}

		if i+1 < len(runes) {
			switch two := string(runes[i : i+2]); two {
			case "==", "!=", ">=", "<=", "&&", "||":
				tokens = append(tokens, token{tkOp, two})
				i += 2
				continue
			}
		}

		if ch == '>' || ch == '<' || ch == '!' {
			tokens = append(tokens, token{tkOp, string(ch)})
			i++
			continue
		}

		if isDigit(ch) || (ch == '-' && i+1 < len(runes) && isDigit(runes[i+1]) && isNumberStart(tokens)) {
			num, n := readNumber(runes, i)
			tokens = append(tokens, token{tkNumber, num})
			i = n
			continue
		}

		if isIdentStart(ch) {
			ident, n := readIdent(runes, i)
			if ident == "in" {
				tokens = append(tokens, token{tkOp, ident})
			} else {
				tokens = append(tokens, token{tkIdent, ident})
			}
			i = n
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
	}

	return tokens, nil
}

// readString reads a literal delimited by the quote at start; backslash escapes the next rune.
func readString(runes []rune, start int) (string, int, error) {
	quote := runes[start]
	var sb strings.Builder
	for i := start + 1; i < len(runes); i++ {
		switch {
		case runes[i] == '\\' && i+1 < len(runes):
			i++
			sb.WriteRune(runes[i])
		case runes[i] == quote:
			return sb.String(), i + 1, nil
		default:
			sb.WriteRune(runes[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated string starting at position %d", start)
}

func readNumber(runes []rune, start int) (string, int) {
	i := start
	if runes[i] == '-' {
		i++
	}
	for i < len(runes) && isDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && isDigit(runes[i]) {
			i++
		}
	}
	return string(runes[start:i]), i
}

func readIdent(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return string(runes[start:i]), i
}

func isDigit(ch rune) bool      { return ch >= '0' && ch <= '9' }
func isIdentStart(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }
func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.' || ch == '-'
}

// isNumberStart reports whether a '-' starts a negative literal: at the start,
// after an operator, an opening bracket or a comma.
func isNumberStart(preceding []token) bool {
	if len(preceding) == 0 {
		return true
	}
	switch preceding[len(preceding)-1].kind {
	case tkOp, tkLParen, tkLBracket, tkComma:
		return true
	}
	return false
}

// =============================================================================
// Parser
// =============================================================================

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *exprParser) peekOp(ops ...string) (string, bool) {
	t := p.peek()
	if t == nil || t.kind != tkOp {
		return "", false
	}
	for _, op := range ops {
		if t.value == op {
			return op, true
		}
	}
	return "", false
}

func (p *exprParser) expect(kind tokenKind, what string) error {
	t := p.peek()
	if t == nil || t.kind != kind {
		return fmt.Errorf("expected %s", what)
	}
	p.pos++
	return nil
}

func (p *exprParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("||"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{or: true, left: left, right: right}
	}
}

func (p *exprParser) parseAnd() (exprNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{left: left, right: right}
	}
}

func (p *exprParser) parseComparison() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op, ok := p.peekOp("==", "!=", ">", "<", ">=", "<=", "in")
	if !ok {
		return left, nil
	}
	p.pos++
	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if op == "in" {
		return &inNode{needle: left, haystack: right}, nil
	}
	return &compareNode{op: op, left: left, right: right}, nil
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if _, ok := p.peekOp("!"); ok {
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	p.pos++

	switch t.kind {
	case tkNumber:
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.value, err)
		}
		return literalNode{v: f}, nil

	case tkString:
		return literalNode{v: t.value}, nil

	case tkIdent:
		switch t.value {
		case "true":
			return literalNode{v: true}, nil
		case "false":
			return literalNode{v: false}, nil
		case "null", "nil":
			return literalNode{v: nil}, nil
		}
		return pathNode{path: t.value, parts: strings.Split(t.value, ".")}, nil

	case tkLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tkRParen, "closing parenthesis"); err != nil {
			return nil, err
		}
		return x, nil

	case tkLBracket:
		list := &listNode{}
		if t := p.peek(); t != nil && t.kind == tkRBracket {
			p.pos++
			return list, nil
		}
		for {
			item, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			list.items = append(list.items, item)
			if t := p.peek(); t != nil && t.kind == tkComma {
				p.pos++
				continue
			}
			if err := p.expect(tkRBracket, "closing bracket"); err != nil {
				return nil, err
			}
			return list, nil
		}

	default:
		return nil, fmt.Errorf("unexpected token %q", t.value)
	}
}

// =============================================================================
// AST
// =============================================================================

type exprNode interface {
	eval(vars map[string]any) any
	paths(out *[]string)
}

type literalNode struct{ v any }

func (n literalNode) eval(map[string]any) any { return n.v }
func (n literalNode) paths(*[]string)         {}

type pathNode struct {
	path  string
	parts []string
}

func (n pathNode) eval(vars map[string]any) any { return resolvePath(n.parts, vars) }
func (n pathNode) paths(out *[]string)          { *out = append(*out, n.path) }

type listNode struct{ items []exprNode }

func (n *listNode) eval(vars map[string]any) any {
	out := make([]any, len(n.items))
	for i, item := range n.items {
		out[i] = item.eval(vars)
	}
	return out
}

func (n *listNode) paths(out *[]string) {
	for _, item := range n.items {
		item.paths(out)
	}
}

type notNode struct{ x exprNode }

func (n *notNode) eval(vars map[string]any) any { return !toBool(n.x.eval(vars)) }
func (n *notNode) paths(out *[]string)          { n.x.paths(out) }

// logicalNode short-circuits: the right operand is not evaluated when the
// left one already decides the result.
type logicalNode struct {
	or          bool
	left, right exprNode
}

func (n *logicalNode) eval(vars map[string]any) any {
	l := toBool(n.left.eval(vars))
	if n.or {
		return l || toBool(n.right.eval(vars))
	}
	return l && toBool(n.right.eval(vars))
}

func (n *logicalNode) paths(out *[]string) {
	n.left.paths(out)
	n.right.paths(out)
}

type compareNode struct {
	op          string
	left, right exprNode
}

func (n *compareNode) eval(vars map[string]any) any {
	return evalComparison(n.left.eval(vars), n.op, n.right.eval(vars))
}

func (n *compareNode) paths(out *[]string) {
	n.left.paths(out)
	n.right.paths(out)
}

type inNode struct{ needle, haystack exprNode }

func (n *inNode) eval(vars map[string]any) any {
	return contains(n.haystack.eval(vars), n.needle.eval(vars))
}

func (n *inNode) paths(out *[]string) {
	n.needle.paths(out)
	n.haystack.paths(out)
}

// =============================================================================
// Evaluation helpers
// =============================================================================

// resolvePath walks nested maps. Any map with string keys is accepted.
func resolvePath(parts []string, vars map[string]any) any {
	var current any = vars
	for _, part := range parts {
		switch m := current.(type) {
		case map[string]any:
			v, ok := m[part]
			if !ok {
				return nil
			}
			current = v
		default:
			rv := reflect.ValueOf(current)
			if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
				return nil
			}
			v := rv.MapIndex(reflect.ValueOf(part).Convert(rv.Type().Key()))
			if !v.IsValid() {
				return nil
			}
			current = v.Interface()
		}
	}
	return current
}

// contains implements `needle in haystack` for slices, arrays, string-keyed
// maps (key membership) and strings (substring).
func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case nil:
		return false
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []any:
		for _, item := range h {
			if evalComparison(item, "==", needle) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range h {
			if evalComparison(item, "==", needle) {
				return true
			}
		}
		return false
	}

	rv := reflect.ValueOf(haystack)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if evalComparison(rv.Index(i).Interface(), "==", needle) {
				return true
			}
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return false
		}
		s, ok := needle.(string)
		if !ok {
			return false
		}
		return rv.MapIndex(reflect.ValueOf(s).Convert(rv.Type().Key())).IsValid()
	}
	return false
}

// evalComparison compares two values numerically when both convert to
// float64, otherwise by their string forms. nil sorts before everything and
// equals only nil.
func evalComparison(left any, op string, right any) bool {
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == nil && right == nil
		case "!=":
			return !(left == nil && right == nil)
		case "<":
			return left == nil && right != nil
		case ">":
			return left != nil && right == nil
		case "<=":
			return left == nil
		case ">=":
			return right == nil
		}
		return false
	}

	if lf, lok := toFloat64(left); lok {
		if rf, rok := toFloat64(right); rok {
			return compareOrdered(lf, op, rf)
		}
	}
	if lb, lok := left.(bool); lok {
		if rb, rok := right.(bool); rok {
			switch op {
			case "==":
				return lb == rb
			case "!=":
				return lb != rb
			}
		}
	}
	return compareOrdered(fmt.Sprintf("%v", left), op, fmt.Sprintf("%v", right))
}

func compareOrdered[T float64 | string](l T, op string, r T) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case "<":
		return l < r
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	}
	return false
}

// toBool converts a value to boolean. Empty collections are false.
func toBool(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false" && val != "0"
	}
	if f, ok := toFloat64(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

// toFloat64 converts numeric values and numeric strings.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
