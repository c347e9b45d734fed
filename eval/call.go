package eval

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/scope"
	"github.com/apirecon/apirecon/value"
)

func (e *Evaluator) evalCall(call *sitter.Node, env Env, st *state) value.Value {
	callee, chain, args := e.unit.CallParts(call)
	if callee == nil {
		return nil
	}

	// string helper methods on resolved receivers
	if callee.Type() == "member_expression" {
		if result := e.evalStringMethod(callee, args, env, st); result != nil {
			return result
		}
	}

	if callee.Type() == "identifier" && st.calls < e.opts.MaxCalls {
		if binding, ok := e.scopes.Resolve(e.unit.Content(callee), call); ok {
			if fn := functionNode(binding); fn != nil && !st.seen[fn] {
				st.calls++
				return e.inline(fn, args, env, st)
			}
		}
	}

	if len(chain) > 0 {
		return value.PlaceholderFor(strings.Join(chain, ".") + "()")
	}
	return nil
}

// functionNode extracts the callable definition behind a binding, either
// a declared function or a const bound to a function expression.
func functionNode(binding *scope.Binding) *sitter.Node {
	if binding.Value == nil {
		return nil
	}
	if ast.IsFunctionLike(binding.Value) {
		return binding.Value
	}
	return nil
}

// inline evaluates a function body with the call's arguments bound to
// its parameters positionally.
func (e *Evaluator) inline(fn *sitter.Node, args []*sitter.Node, callerEnv Env, st *state) value.Value {
	st.seen[fn] = true
	defer delete(st.seen, fn)

	env := Env{}
	params := parameterNames(e, fn)
	for i, param := range params {
		if param.rest {
			break
		}
		if i < len(args) {
			env[param.name] = e.eval(args[i], callerEnv, st)
		} else if param.deflt != nil {
			env[param.name] = e.eval(param.deflt, Env{}, st)
		}
	}

	body := fn.ChildByFieldName("body")
	if body == nil {
		return value.PlaceholderFor("function")
	}
	if body.Type() != "statement_block" {
		// expression-bodied arrow function
		return e.eval(body, env, st)
	}
	result, returned := e.evalBody(body, env, st)
	if !returned {
		return value.PlaceholderFor("void")
	}
	return result
}

type parameter struct {
	name  string
	deflt *sitter.Node
	rest  bool
}

func parameterNames(e *Evaluator, fn *sitter.Node) []parameter {
	var params []parameter
	list := fn.ChildByFieldName("parameters")
	if list == nil {
		if single := fn.ChildByFieldName("parameter"); single != nil && single.Type() == "identifier" {
			return []parameter{{name: e.unit.Content(single)}}
		}
		return nil
	}
	for _, node := range ast.NamedChildren(list) {
		if node.Type() == "required_parameter" || node.Type() == "optional_parameter" {
			if pattern := node.ChildByFieldName("pattern"); pattern != nil {
				node = pattern
			}
		}
		switch node.Type() {
		case "identifier":
			params = append(params, parameter{name: e.unit.Content(node)})
		case "assignment_pattern":
			left := node.ChildByFieldName("left")
			if left != nil && left.Type() == "identifier" {
				params = append(params, parameter{
					name:  e.unit.Content(left),
					deflt: node.ChildByFieldName("right"),
				})
			} else {
				params = append(params, parameter{name: "_"})
			}
		case "rest_pattern":
			params = append(params, parameter{rest: true})
		default:
			// destructured parameters keep their positional slot
			params = append(params, parameter{name: "_"})
		}
	}
	return params
}

// evalBody walks a statement block with simple constant propagation,
// returning the value of the first reachable resolvable return.
func (e *Evaluator) evalBody(body *sitter.Node, env Env, st *state) (value.Value, bool) {
	budget := e.opts.MaxStatements
	return e.evalStatements(body, env, st, &budget)
}

func (e *Evaluator) evalStatements(block *sitter.Node, env Env, st *state, budget *int) (value.Value, bool) {
	for _, statement := range ast.NamedChildren(block) {
		if *budget <= 0 {
			return nil, false
		}
		*budget--
		switch statement.Type() {
		case "lexical_declaration", "variable_declaration":
			for _, declarator := range ast.NamedChildren(statement) {
				if declarator.Type() != "variable_declarator" {
					continue
				}
				name := declarator.ChildByFieldName("name")
				init := declarator.ChildByFieldName("value")
				if name != nil && name.Type() == "identifier" && init != nil {
					env[e.unit.Content(name)] = e.eval(init, env, st)
				}
			}
		case "expression_statement":
			if statement.NamedChildCount() == 0 {
				continue
			}
			expr := statement.NamedChild(0)
			if expr.Type() == "assignment_expression" {
				left := expr.ChildByFieldName("left")
				right := expr.ChildByFieldName("right")
				if left != nil && left.Type() == "identifier" && right != nil {
					env[e.unit.Content(left)] = e.eval(right, env, st)
				}
			}
		case "return_statement":
			if statement.NamedChildCount() == 0 {
				return value.Null{}, true
			}
			return e.eval(statement.NamedChild(0), env, st), true
		case "if_statement":
			condition := e.eval(statement.ChildByFieldName("condition"), env, st)
			consequence := statement.ChildByFieldName("consequence")
			alternative := elseBlock(statement)
			if truthy, known := value.Truthy(condition); known {
				branch := consequence
				if !truthy {
					branch = alternative
				}
				if branch != nil {
					if result, returned := e.evalBranch(branch, env, st, budget); returned {
						return result, true
					}
				}
				continue
			}
			// unknown condition, accept a resolvable return from either branch
			if consequence != nil {
				if result, returned := e.evalBranch(consequence, env.clone(), st, budget); returned && value.IsResolved(result) {
					return result, true
				}
			}
			if alternative != nil {
				if result, returned := e.evalBranch(alternative, env.clone(), st, budget); returned && value.IsResolved(result) {
					return result, true
				}
			}
		case "while_statement", "for_statement", "for_in_statement":
			// loop bodies contribute returns but not iteration effects
			if loopBody := statement.ChildByFieldName("body"); loopBody != nil {
				if result, returned := e.evalBranch(loopBody, env.clone(), st, budget); returned && value.IsResolved(result) {
					return result, true
				}
			}
		case "try_statement":
			if tryBody := statement.ChildByFieldName("body"); tryBody != nil {
				if result, returned := e.evalStatements(tryBody, env, st, budget); returned {
					return result, true
				}
			}
		case "statement_block":
			if result, returned := e.evalStatements(statement, env, st, budget); returned {
				return result, true
			}
		}
	}
	return nil, false
}

func (e *Evaluator) evalBranch(branch *sitter.Node, env Env, st *state, budget *int) (value.Value, bool) {
	if branch.Type() == "statement_block" {
		return e.evalStatements(branch, env, st, budget)
	}
	if branch.Type() == "return_statement" {
		if branch.NamedChildCount() == 0 {
			return value.Null{}, true
		}
		return e.eval(branch.NamedChild(0), env, st), true
	}
	return nil, false
}

func elseBlock(ifStatement *sitter.Node) *sitter.Node {
	alternative := ifStatement.ChildByFieldName("alternative")
	if alternative == nil {
		return nil
	}
	if alternative.Type() == "else_clause" && alternative.NamedChildCount() > 0 {
		return alternative.NamedChild(0)
	}
	return alternative
}

// evalStringMethod handles the string helpers that commonly shape URLs.
func (e *Evaluator) evalStringMethod(member *sitter.Node, args []*sitter.Node, env Env, st *state) value.Value {
	property := member.ChildByFieldName("property")
	object := member.ChildByFieldName("object")
	if property == nil || object == nil {
		return nil
	}
	receiver := e.eval(object, env, st)
	text, ok := value.AsString(receiver)
	if !ok {
		return nil
	}
	partial := !value.IsResolved(receiver)
	switch e.unit.Content(property) {
	case "toLowerCase":
		return value.String{Val: strings.ToLower(text), Partial: partial}
	case "toUpperCase":
		return value.String{Val: strings.ToUpper(text), Partial: partial}
	case "trim":
		return value.String{Val: strings.TrimSpace(text), Partial: partial}
	case "concat":
		parts := []value.Value{receiver}
		for _, arg := range args {
			parts = append(parts, e.eval(arg, env, st))
		}
		return value.Join(parts...)
	case "replace":
		if len(args) == 2 && ast.IsStringNode(args[0]) && ast.IsStringNode(args[1]) {
			return value.String{Val: strings.Replace(text,
				e.unit.StringContent(args[0]), e.unit.StringContent(args[1]), 1), Partial: partial}
		}
	case "slice", "substring":
		if len(args) >= 1 {
			if start, ok := value.AsNumber(e.eval(args[0], env, st)); ok {
				from := int(start)
				if from >= 0 && from <= len(text) {
					if len(args) == 1 {
						return value.String{Val: text[from:], Partial: partial}
					}
					if end, ok := value.AsNumber(e.eval(args[1], env, st)); ok {
						to := int(end)
						if to >= from && to <= len(text) {
							return value.String{Val: text[from:to], Partial: partial}
						}
					}
				}
			}
		}
	}
	return nil
}
