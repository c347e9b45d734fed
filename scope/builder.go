package scope

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/ast"
)

// Build walks a source unit and produces its scope tree.
func Build(unit *ast.SourceUnit) *Tree {
	tree := &Tree{
		Unit:   unit,
		byNode: map[*sitter.Node]*Scope{},
	}
	tree.Module = newScope(KindModule, unit.Root, nil)
	tree.byNode[unit.Root] = tree.Module
	b := &builder{unit: unit, tree: tree}
	b.walk(unit.Root, tree.Module)
	return tree
}

type builder struct {
	unit *ast.SourceUnit
	tree *Tree
}

func (b *builder) push(kind Kind, node *sitter.Node, parent *Scope) *Scope {
	scope := newScope(kind, node, parent)
	b.tree.byNode[node] = scope
	return scope
}

func (b *builder) walk(node *sitter.Node, current *Scope) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch {
		case ast.IsFunctionLike(child):
			b.enterFunction(child, current)
		case child.Type() == "class_declaration" || child.Type() == "class":
			b.enterClass(child, current)
		case child.Type() == "statement_block":
			inner := b.push(KindBlock, child, current)
			b.walk(child, inner)
		case child.Type() == "for_statement" || child.Type() == "for_in_statement":
			inner := b.push(KindBlock, child, current)
			b.walk(child, inner)
		case child.Type() == "catch_clause":
			inner := b.push(KindBlock, child, current)
			if param := child.ChildByFieldName("parameter"); param != nil {
				b.bindPattern(param, BindCatch, nil, nil, inner)
			}
			b.walk(child, inner)
		case child.Type() == "lexical_declaration":
			kind := BindConst
			if b.unit.Content(child.Child(0)) == "let" {
				kind = BindLet
			}
			b.bindDeclarators(child, kind, current)
			b.walk(child, current)
		case child.Type() == "variable_declaration":
			b.bindDeclarators(child, BindVar, hoistTarget(current))
			b.walk(child, current)
		case child.Type() == "import_statement":
			b.bindImports(child, current)
		default:
			b.walk(child, current)
		}
	}
}

// hoistTarget returns the nearest function or module scope, where var
// declarations attach.
func hoistTarget(scope *Scope) *Scope {
	for s := scope; s != nil; s = s.Parent {
		if s.Kind == KindFunction || s.Kind == KindModule {
			return s
		}
	}
	return scope
}

func (b *builder) enterFunction(fn *sitter.Node, current *Scope) {
	if fn.Type() == "function_declaration" || fn.Type() == "generator_function_declaration" {
		if name := fn.ChildByFieldName("name"); name != nil {
			current.Declare(&Binding{
				Name:  b.unit.Content(name),
				Kind:  BindFunc,
				Node:  fn,
				Value: fn,
			})
		}
	}
	inner := b.push(KindFunction, fn, current)
	b.bindParams(fn, inner)
	if body := fn.ChildByFieldName("body"); body != nil {
		b.walk(body, inner)
	}
}

func (b *builder) enterClass(class *sitter.Node, current *Scope) {
	if name := class.ChildByFieldName("name"); name != nil {
		current.Declare(&Binding{
			Name:  b.unit.Content(name),
			Kind:  BindClass,
			Node:  class,
			Value: class,
		})
	}
	inner := b.push(KindClass, class, current)
	b.walk(class, inner)
}

func (b *builder) bindParams(fn *sitter.Node, scope *Scope) {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		// single-identifier arrow functions
		if param := fn.ChildByFieldName("parameter"); param != nil {
			b.bindPattern(param, BindParam, nil, nil, scope)
		}
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		switch param.Type() {
		case "required_parameter", "optional_parameter":
			pattern := param.ChildByFieldName("pattern")
			value := param.ChildByFieldName("value")
			if pattern != nil {
				b.bindPattern(pattern, BindParam, value, nil, scope)
			}
		default:
			b.bindPattern(param, BindParam, nil, nil, scope)
		}
	}
}

func (b *builder) bindDeclarators(decl *sitter.Node, kind BindingKind, target *Scope) {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		declarator := decl.NamedChild(i)
		if declarator.Type() != "variable_declarator" {
			continue
		}
		name := declarator.ChildByFieldName("name")
		value := declarator.ChildByFieldName("value")
		if name == nil {
			continue
		}
		b.bindPattern(name, kind, value, nil, target)
	}
}

// bindPattern declares every identifier inside a binding pattern. For
// destructuring patterns, path accumulates the keys leading from the
// initializer down to each bound name. deflt is the nearest default
// expression, kept so lookups can fall back when the initializer lacks
// the key.
func (b *builder) bindPattern(pattern *sitter.Node, kind BindingKind, value *sitter.Node, path []string, scope *Scope) {
	b.bindPatternWithDefault(pattern, kind, value, nil, path, scope)
}

func (b *builder) bindPatternWithDefault(pattern *sitter.Node, kind BindingKind, value, deflt *sitter.Node, path []string, scope *Scope) {
	switch pattern.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		scope.Declare(&Binding{
			Name:    b.unit.Content(pattern),
			Kind:    kind,
			Node:    pattern,
			Value:   value,
			Default: deflt,
			Path:    append([]string(nil), appendPath(path, pattern, b.unit)...),
		})
	case "assignment_pattern":
		left := pattern.ChildByFieldName("left")
		right := pattern.ChildByFieldName("right")
		if left != nil {
			effective := value
			if effective == nil {
				effective = right
				right = nil
			}
			b.bindPatternWithDefault(left, kind, effective, right, path, scope)
		}
	case "rest_pattern":
		if pattern.NamedChildCount() > 0 {
			b.bindPattern(pattern.NamedChild(0), kind, value, path, scope)
		}
	case "object_pattern":
		for i := 0; i < int(pattern.NamedChildCount()); i++ {
			b.bindPattern(pattern.NamedChild(i), kind, value, path, scope)
		}
	case "pair_pattern":
		key := pattern.ChildByFieldName("key")
		inner := pattern.ChildByFieldName("value")
		if key != nil && inner != nil {
			b.bindPattern(inner, kind, value, append(path, ast.Unquote(b.unit.Content(key))), scope)
		}
	case "array_pattern":
		for i := 0; i < int(pattern.NamedChildCount()); i++ {
			b.bindPattern(pattern.NamedChild(i), kind, value, path, scope)
		}
	case "object_assignment_pattern":
		left := pattern.ChildByFieldName("left")
		right := pattern.ChildByFieldName("right")
		if left != nil {
			effective := value
			if effective == nil {
				effective = right
				right = nil
			}
			b.bindPatternWithDefault(left, kind, effective, right, path, scope)
		}
	}
}

// appendPath adds the shorthand key for object-pattern members so the
// binding knows which property of the initializer it names.
func appendPath(path []string, pattern *sitter.Node, unit *ast.SourceUnit) []string {
	if pattern.Type() == "shorthand_property_identifier_pattern" {
		return append(path, unit.Content(pattern))
	}
	if parent := pattern.Parent(); parent != nil && parent.Type() == "object_pattern" && pattern.Type() == "identifier" {
		return append(path, unit.Content(pattern))
	}
	return path
}

func (b *builder) bindImports(stmt *sitter.Node, scope *Scope) {
	source := stmt.ChildByFieldName("source")
	importPath := ""
	if source != nil {
		importPath = ast.Unquote(b.unit.Content(source))
	}
	declare := func(nameNode *sitter.Node) {
		scope.Declare(&Binding{
			Name:       b.unit.Content(nameNode),
			Kind:       BindImport,
			Node:       nameNode,
			ImportPath: importPath,
		})
	}
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		clause := stmt.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				declare(part)
			case "namespace_import":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					if part.NamedChild(k).Type() == "identifier" {
						declare(part.NamedChild(k))
					}
				}
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					bound := spec.ChildByFieldName("alias")
					if bound == nil {
						bound = spec.ChildByFieldName("name")
					}
					if bound != nil {
						declare(bound)
					}
				}
			}
		}
	}
}
