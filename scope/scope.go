// Package scope builds lexical scope trees over parsed source units and
// resolves identifier references to their declaring bindings.
package scope

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/ast"
)

// Kind classifies a scope.
type Kind string

const (
	KindModule   Kind = "module"
	KindFunction Kind = "function"
	KindBlock    Kind = "block"
	KindClass    Kind = "class"
)

// BindingKind classifies how a name was introduced.
type BindingKind string

const (
	BindConst  BindingKind = "const"
	BindLet    BindingKind = "let"
	BindVar    BindingKind = "var"
	BindParam  BindingKind = "param"
	BindFunc   BindingKind = "func"
	BindClass  BindingKind = "class"
	BindImport BindingKind = "import"
	BindCatch  BindingKind = "catch"
)

// Binding is a declared name. Value is the initializer expression node
// when one exists. Path is non-empty for destructured bindings and names
// the keys to descend into the initializer.
type Binding struct {
	Name       string
	Kind       BindingKind
	Node       *sitter.Node
	Value      *sitter.Node
	Default    *sitter.Node
	Path       []string
	Scope      *Scope
	ImportPath string
}

// Scope is one lexical region. Later declarations of the same name in
// the same scope replace earlier ones.
type Scope struct {
	Kind     Kind
	Node     *sitter.Node
	Parent   *Scope
	bindings map[string]*Binding
	order    []string
}

func newScope(kind Kind, node *sitter.Node, parent *Scope) *Scope {
	return &Scope{
		Kind:     kind,
		Node:     node,
		Parent:   parent,
		bindings: map[string]*Binding{},
	}
}

// Declare adds a binding to this scope, shadowing any outer binding of
// the same name.
func (s *Scope) Declare(binding *Binding) {
	if binding == nil || binding.Name == "" {
		return
	}
	binding.Scope = s
	if _, exists := s.bindings[binding.Name]; !exists {
		s.order = append(s.order, binding.Name)
	}
	s.bindings[binding.Name] = binding
}

// Local returns the binding declared directly in this scope, if any.
func (s *Scope) Local(name string) (*Binding, bool) {
	binding, ok := s.bindings[name]
	return binding, ok
}

// Lookup resolves a name innermost-first through the scope chain.
func (s *Scope) Lookup(name string) (*Binding, bool) {
	for scope := s; scope != nil; scope = scope.Parent {
		if binding, ok := scope.bindings[name]; ok {
			return binding, true
		}
	}
	return nil, false
}

// Names returns the names declared directly in this scope, in
// declaration order.
func (s *Scope) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Tree holds the scope structure of one source unit.
type Tree struct {
	Unit   *ast.SourceUnit
	Module *Scope
	byNode map[*sitter.Node]*Scope
}

// Enclosing returns the innermost scope containing the node.
func (t *Tree) Enclosing(n *sitter.Node) *Scope {
	for node := n; node != nil; node = node.Parent() {
		if scope, ok := t.byNode[node]; ok {
			return scope
		}
	}
	return t.Module
}

// Resolve looks up a name from the scope enclosing the reference node.
func (t *Tree) Resolve(name string, ref *sitter.Node) (*Binding, bool) {
	return t.Enclosing(ref).Lookup(name)
}
