// Package eval partially evaluates JavaScript expressions against the
// run's scope trees, class index and configuration tables. Evaluation is
// total: whatever cannot be reduced becomes a placeholder value instead
// of an error.
package eval

import (
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/classes"
	"github.com/apirecon/apirecon/configs"
	"github.com/apirecon/apirecon/scope"
	"github.com/apirecon/apirecon/value"
)

// Options bound the evaluator.
type Options struct {
	// MaxDepth caps expression nesting. Default: 48.
	MaxDepth int
	// MaxCalls caps inlined function calls per evaluation. Default: 16.
	MaxCalls int
	// MaxStatements caps statements walked per function body. Default: 128.
	MaxStatements int
}

// DefaultOptions returns the default evaluation bounds.
func DefaultOptions() Options {
	return Options{
		MaxDepth:      48,
		MaxCalls:      16,
		MaxStatements: 128,
	}
}

// Option mutates evaluator Options.
type Option func(*Options)

// WithMaxDepth overrides the nesting bound.
func WithMaxDepth(depth int) Option {
	return func(o *Options) { o.MaxDepth = depth }
}

// Env overlays parameter and local values during inlined evaluation.
type Env map[string]value.Value

func (e Env) clone() Env {
	copied := make(Env, len(e))
	for name, val := range e {
		copied[name] = val
	}
	return copied
}

// Evaluator reduces expressions in one source unit.
type Evaluator struct {
	unit    *ast.SourceUnit
	scopes  *scope.Tree
	classes *classes.Store
	config  *configs.Table
	holders *configs.Tracker
	opts    Options
}

// New creates an evaluator. Class store, config table and tracker may be
// nil when the corresponding resolution layers are unavailable.
func New(unit *ast.SourceUnit, scopes *scope.Tree, classStore *classes.Store,
	config *configs.Table, holders *configs.Tracker, opts ...Option) *Evaluator {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Evaluator{
		unit:    unit,
		scopes:  scopes,
		classes: classStore,
		config:  config,
		holders: holders,
		opts:    options,
	}
}

type state struct {
	depth int
	calls int
	seen  map[*sitter.Node]bool
}

func newState() *state {
	return &state{seen: map[*sitter.Node]bool{}}
}

// Evaluate reduces a single expression node.
func (e *Evaluator) Evaluate(n *sitter.Node) value.Value {
	return e.eval(n, Env{}, newState())
}

// EvaluateWithEnv reduces an expression with parameter values bound, as
// when a caller's arguments flow into a service method body.
func (e *Evaluator) EvaluateWithEnv(n *sitter.Node, env Env) value.Value {
	if env == nil {
		env = Env{}
	}
	return e.eval(n, env, newState())
}

// EvaluateBody reduces a function body to its returned value.
func (e *Evaluator) EvaluateBody(body *sitter.Node, env Env) value.Value {
	if env == nil {
		env = Env{}
	}
	result, returned := e.evalBody(body, env.clone(), newState())
	if !returned {
		return value.PlaceholderFor("void")
	}
	return result
}

func (e *Evaluator) eval(n *sitter.Node, env Env, st *state) value.Value {
	if n == nil {
		return value.PlaceholderFor("unknown")
	}
	if st.depth >= e.opts.MaxDepth || st.seen[n] {
		return value.PlaceholderFor(e.placeholderName(n))
	}
	st.depth++
	st.seen[n] = true
	result := e.evalNode(n, env, st)
	delete(st.seen, n)
	st.depth--
	if result == nil {
		return value.PlaceholderFor(e.placeholderName(n))
	}
	return result
}

func (e *Evaluator) evalNode(n *sitter.Node, env Env, st *state) value.Value {
	switch n.Type() {
	case "string":
		return value.String{Val: e.unit.StringContent(n)}
	case "template_string":
		return e.evalTemplate(n, env, st)
	case "template_substitution":
		if n.NamedChildCount() > 0 {
			return e.eval(n.NamedChild(0), env, st)
		}
	case "number":
		if parsed, err := strconv.ParseFloat(strings.TrimRight(e.unit.Content(n), "nN"), 64); err == nil {
			return value.Number{Val: parsed}
		}
	case "true":
		return value.Bool{Val: true}
	case "false":
		return value.Bool{Val: false}
	case "null", "undefined":
		return value.Null{}
	case "identifier":
		return e.resolveIdentifier(e.unit.Content(n), n, env, st)
	case "parenthesized_expression", "await_expression", "non_null_expression", "as_expression":
		if n.NamedChildCount() > 0 {
			return e.eval(n.NamedChild(0), env, st)
		}
	case "binary_expression":
		return e.evalBinary(n, env, st)
	case "unary_expression":
		return e.evalUnary(n, env, st)
	case "ternary_expression":
		return e.evalTernary(n, env, st)
	case "object":
		return e.evalObject(n, env, st)
	case "array":
		return e.evalArray(n, env, st)
	case "member_expression", "subscript_expression":
		return e.evalMember(n, env, st)
	case "call_expression":
		return e.evalCall(n, env, st)
	case "new_expression":
		if ctor := n.ChildByFieldName("constructor"); ctor != nil {
			return value.PlaceholderFor("new " + e.unit.Content(ctor))
		}
	case "arrow_function", "function_expression", "function":
		return value.PlaceholderFor("function")
	}
	return nil
}

func (e *Evaluator) placeholderName(n *sitter.Node) string {
	switch n.Type() {
	case "identifier", "property_identifier":
		return e.unit.Content(n)
	case "member_expression", "subscript_expression":
		if chain, pure := e.unit.MemberChain(n); pure {
			if chain[0] == "this" {
				chain = chain[1:]
			}
			return strings.Join(chain, ".")
		}
		if property := n.ChildByFieldName("property"); property != nil {
			return e.unit.Content(property)
		}
	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil {
			return e.placeholderName(fn) + "()"
		}
	}
	text := e.unit.Content(n)
	if len(text) > 24 {
		return "expr"
	}
	return text
}

func (e *Evaluator) evalTemplate(n *sitter.Node, env Env, st *state) value.Value {
	var parts []value.Value
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "string_fragment", "escape_sequence":
			parts = append(parts, value.String{Val: e.unit.Content(child)})
		case "template_substitution":
			parts = append(parts, e.eval(child, env, st))
		}
	}
	return value.Join(parts...)
}

func (e *Evaluator) evalBinary(n *sitter.Node, env Env, st *state) value.Value {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	operator := e.unit.OperatorText(n)
	switch operator {
	case "+":
		lv := e.eval(left, env, st)
		rv := e.eval(right, env, st)
		if ln, lok := value.AsNumber(lv); lok {
			if rn, rok := value.AsNumber(rv); rok {
				if lv.Kind() == value.KindNumber && rv.Kind() == value.KindNumber {
					return value.Number{Val: ln + rn}
				}
			}
		}
		// string concatenation keeps placeholders embedded but stays
		// marked partial so the result cannot pass for a literal
		return value.Join(lv, rv)
	case "||", "??":
		lv := e.eval(left, env, st)
		if truthy, known := value.Truthy(lv); known {
			if operator == "??" {
				if lv.Kind() != value.KindNull {
					return lv
				}
				return e.eval(right, env, st)
			}
			if truthy {
				return lv
			}
			return e.eval(right, env, st)
		}
		// unknown left side, the fallback literal is the best guess
		rv := e.eval(right, env, st)
		if value.IsResolved(rv) {
			return rv
		}
		return lv
	case "&&":
		lv := e.eval(left, env, st)
		if truthy, known := value.Truthy(lv); known {
			if !truthy {
				return lv
			}
			return e.eval(right, env, st)
		}
		return value.PlaceholderFor(e.placeholderName(n))
	case "===", "==":
		lv := e.eval(left, env, st)
		rv := e.eval(right, env, st)
		if value.IsResolved(lv) && value.IsResolved(rv) {
			return value.Bool{Val: value.Equal(lv, rv)}
		}
	case "!==", "!=":
		lv := e.eval(left, env, st)
		rv := e.eval(right, env, st)
		if value.IsResolved(lv) && value.IsResolved(rv) {
			return value.Bool{Val: !value.Equal(lv, rv)}
		}
	case "-", "*", "/", "%":
		lv, lok := value.AsNumber(e.eval(left, env, st))
		rv, rok := value.AsNumber(e.eval(right, env, st))
		if lok && rok {
			switch operator {
			case "-":
				return value.Number{Val: lv - rv}
			case "*":
				return value.Number{Val: lv * rv}
			case "/":
				if rv != 0 {
					return value.Number{Val: lv / rv}
				}
			case "%":
				if rv != 0 {
					return value.Number{Val: float64(int64(lv) % int64(rv))}
				}
			}
		}
	}
	return nil
}

func (e *Evaluator) evalUnary(n *sitter.Node, env Env, st *state) value.Value {
	operator := ""
	if op := n.ChildByFieldName("operator"); op != nil {
		operator = e.unit.Content(op)
	}
	argument := n.ChildByFieldName("argument")
	switch operator {
	case "!":
		if truthy, known := value.Truthy(e.eval(argument, env, st)); known {
			return value.Bool{Val: !truthy}
		}
	case "-":
		if num, ok := value.AsNumber(e.eval(argument, env, st)); ok {
			return value.Number{Val: -num}
		}
	case "typeof":
		return value.PlaceholderFor("typeof")
	case "void":
		return value.Null{}
	}
	return nil
}

func (e *Evaluator) evalTernary(n *sitter.Node, env Env, st *state) value.Value {
	condition := e.eval(n.ChildByFieldName("condition"), env, st)
	consequence := n.ChildByFieldName("consequence")
	alternative := n.ChildByFieldName("alternative")
	if truthy, known := value.Truthy(condition); known {
		if truthy {
			return e.eval(consequence, env, st)
		}
		return e.eval(alternative, env, st)
	}
	// unknown condition, prefer whichever branch resolves
	first := e.eval(consequence, env, st)
	if value.IsResolved(first) {
		return first
	}
	second := e.eval(alternative, env, st)
	if value.IsResolved(second) {
		return second
	}
	return first
}

func (e *Evaluator) evalObject(n *sitter.Node, env Env, st *state) value.Value {
	object := value.NewObject()
	for _, member := range ast.NamedChildren(n) {
		switch member.Type() {
		case "pair":
			key := member.ChildByFieldName("key")
			val := member.ChildByFieldName("value")
			if key == nil || val == nil {
				continue
			}
			if key.Type() == "computed_property_name" {
				continue
			}
			object.Set(ast.Unquote(e.unit.Content(key)), e.eval(val, env, st))
		case "shorthand_property_identifier":
			name := e.unit.Content(member)
			object.Set(name, e.resolveIdentifier(name, member, env, st))
		case "spread_element":
			if member.NamedChildCount() == 0 {
				continue
			}
			spread := e.eval(member.NamedChild(0), env, st)
			if inner, ok := value.AsObject(spread); ok {
				for _, key := range inner.Order {
					object.Set(key, inner.Entries[key])
				}
			}
		}
	}
	return object
}

func (e *Evaluator) evalArray(n *sitter.Node, env Env, st *state) value.Value {
	items := make([]value.Value, 0, n.NamedChildCount())
	for _, item := range ast.NamedChildren(n) {
		items = append(items, e.eval(item, env, st))
	}
	return value.Array{Items: items}
}

// resolveIdentifier reduces a name reference: environment overlay first,
// then the binding's initializer in its own defining scope, then the
// configuration table, then a placeholder.
func (e *Evaluator) resolveIdentifier(name string, ref *sitter.Node, env Env, st *state) value.Value {
	if bound, ok := env[name]; ok {
		return bound
	}
	binding, ok := e.scopes.Resolve(name, ref)
	if !ok {
		return value.PlaceholderFor(name)
	}
	return e.resolveBinding(binding, env, st)
}

func (e *Evaluator) resolveBinding(binding *scope.Binding, env Env, st *state) value.Value {
	if binding.Kind == scope.BindImport {
		return e.resolveImport(binding)
	}
	if binding.Value == nil {
		return value.PlaceholderFor(binding.Name)
	}
	// the initializer evaluates in its own scope, so the overlay from the
	// reference site must not leak into it
	result := e.eval(binding.Value, Env{}, st)
	if len(binding.Path) > 0 {
		result = e.dig(result, binding.Path, st)
	}
	if !value.IsResolved(result) && binding.Default != nil {
		fallback := e.eval(binding.Default, Env{}, st)
		if value.IsResolved(fallback) {
			return fallback
		}
	}
	if result.Kind() == value.KindPlaceholder {
		return value.PlaceholderFor(binding.Name)
	}
	return result
}

// resolveImport materializes JSON-imported modules from the scanned
// configuration table; other imports stay symbolic.
func (e *Evaluator) resolveImport(binding *scope.Binding) value.Value {
	if e.config != nil && strings.HasSuffix(strings.ToLower(binding.ImportPath), ".json") {
		base := filepath.Base(binding.ImportPath)
		if document, ok := e.config.Document(base); ok {
			result := value.FromAny(document)
			if len(binding.Path) > 0 {
				return e.dig(result, binding.Path, newState())
			}
			return result
		}
	}
	return value.PlaceholderFor(binding.Name)
}

// dig descends a value along property path segments.
func (e *Evaluator) dig(v value.Value, path []string, st *state) value.Value {
	current := v
	for _, segment := range path {
		if object, ok := value.AsObject(current); ok {
			next := object.Get(segment)
			if next == nil {
				return value.PlaceholderFor(segment)
			}
			current = next
			continue
		}
		if array, ok := current.(value.Array); ok {
			if index, err := strconv.Atoi(segment); err == nil && index >= 0 && index < len(array.Items) {
				current = array.Items[index]
				continue
			}
		}
		return value.PlaceholderFor(segment)
	}
	return current
}
