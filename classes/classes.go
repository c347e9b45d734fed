// Package classes indexes class declarations and records every write to
// instance properties, so member reads through `this` can be resolved to
// concrete initializer expressions.
package classes

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/ast"
)

// WriteKind classifies how an instance property received its value.
type WriteKind string

const (
	// WriteField is a class field initializer.
	WriteField WriteKind = "field"
	// WriteCtor is a this.x = ... assignment in the constructor.
	WriteCtor WriteKind = "ctor"
	// WriteMethod is a this.x = ... assignment in some other method.
	WriteMethod WriteKind = "method"
	// WriteMerge is an Object.assign onto this or a this-rooted chain.
	WriteMerge WriteKind = "merge"
	// WriteDefine is an Object.defineProperty with a value descriptor.
	WriteDefine WriteKind = "define"
)

// PropertyWrite records one assignment into an instance property. Chain
// holds the property path below `this`.
type PropertyWrite struct {
	Kind   WriteKind
	Chain  []string
	RHS    *sitter.Node
	Method string
	Pos    uint32
	Class  *Class
}

// Method is one member function of a class.
type Method struct {
	Name   string
	Node   *sitter.Node
	Body   *sitter.Node
	Params *sitter.Node
	IsCtor bool
	Static bool
}

// Class is one indexed class with its methods and property writes.
type Class struct {
	Name          string
	Node          *sitter.Node
	Unit          *ast.SourceUnit
	SuperClass    string
	Methods       []*Method
	Writes        []*PropertyWrite
	methodsByName map[string]*Method
}

// MethodNamed returns the method with the given name, if present.
func (c *Class) MethodNamed(name string) (*Method, bool) {
	m, ok := c.methodsByName[name]
	return m, ok
}

// ReadSite locates a property read for ranking purposes.
type ReadSite struct {
	Method string
	Pos    uint32
}

// Store indexes classes across all analyzed units.
type Store struct {
	classes []*Class
	byUnit  map[*ast.SourceUnit][]*Class
	byName  map[string][]*Class
}

// NewStore creates an empty class store.
func NewStore() *Store {
	return &Store{
		byUnit: map[*ast.SourceUnit][]*Class{},
		byName: map[string][]*Class{},
	}
}

// All returns every indexed class.
func (s *Store) All() []*Class {
	return s.classes
}

// Named returns the classes declared under the given name.
func (s *Store) Named(name string) []*Class {
	return s.byName[name]
}

// Collect indexes every class in a unit, including class expressions
// bound through const and assignments.
func (s *Store) Collect(unit *ast.SourceUnit) {
	ast.EachNode(unit.Root, func(n *sitter.Node) {
		switch n.Type() {
		case "class_declaration":
			s.add(collect(unit, n, declaredName(unit, n)))
		case "class":
			// only index expressions, declarations already matched above
			if parent := n.Parent(); parent != nil && parent.Type() != "class_declaration" {
				s.add(collect(unit, n, expressionName(unit, n)))
			}
		}
	})
}

func (s *Store) add(class *Class) {
	if class == nil {
		return
	}
	s.classes = append(s.classes, class)
	s.byUnit[class.Unit] = append(s.byUnit[class.Unit], class)
	if class.Name != "" {
		s.byName[class.Name] = append(s.byName[class.Name], class)
	}
}

// ClassAt returns the innermost class whose body spans the node.
func (s *Store) ClassAt(unit *ast.SourceUnit, n *sitter.Node) (*Class, bool) {
	if n == nil {
		return nil, false
	}
	var best *Class
	for _, class := range s.byUnit[unit] {
		if class.Node.StartByte() <= n.StartByte() && n.EndByte() <= class.Node.EndByte() {
			if best == nil || class.Node.StartByte() >= best.Node.StartByte() {
				best = class
			}
		}
	}
	return best, best != nil
}

// MethodAt returns the class method whose body spans the node.
func (c *Class) MethodAt(n *sitter.Node) (*Method, bool) {
	for _, method := range c.Methods {
		if method.Node.StartByte() <= n.StartByte() && n.EndByte() <= method.Node.EndByte() {
			return method, true
		}
	}
	return nil, false
}

// WritesFor returns the property writes that can supply a value for the
// given chain, best candidate first:
//
//  1. writes in the reading method that precede the read, latest first
//  2. initialization writes (fields, constructor, merges, defines)
//  3. writes in other methods
//  4. writes in the reading method after the read
//
// A write matches when its chain is a prefix of the requested chain; the
// caller descends the remaining segments into the write's value.
func (s *Store) WritesFor(class *Class, chain []string, site ReadSite) []*PropertyWrite {
	if class == nil || len(chain) == 0 {
		return nil
	}
	var sameMethod, initWrites, elsewhere, afterRead []*PropertyWrite
	for _, write := range class.Writes {
		if !chainPrefix(write.Chain, chain) && !write.isWildcard() {
			continue
		}
		switch {
		case write.Method == site.Method && site.Method != "" && write.Pos < site.Pos:
			sameMethod = append(sameMethod, write)
		case write.Kind == WriteField || write.Kind == WriteCtor ||
			write.Kind == WriteMerge || write.Kind == WriteDefine:
			initWrites = append(initWrites, write)
		case write.Method == site.Method && site.Method != "":
			// a write after the read cannot have produced the value
			afterRead = append(afterRead, write)
		default:
			elsewhere = append(elsewhere, write)
		}
	}
	sortByPosDesc(sameMethod)
	sortByPosDesc(initWrites)
	sortByPosDesc(elsewhere)
	sortByPosDesc(afterRead)
	ranked := make([]*PropertyWrite, 0, len(sameMethod)+len(initWrites)+len(elsewhere)+len(afterRead))
	ranked = append(ranked, sameMethod...)
	ranked = append(ranked, initWrites...)
	ranked = append(ranked, elsewhere...)
	ranked = append(ranked, afterRead...)
	return ranked
}

// Remainder returns the chain segments the write does not cover.
func (w *PropertyWrite) Remainder(chain []string) []string {
	if w.isWildcard() {
		return chain
	}
	if len(w.Chain) >= len(chain) {
		return nil
	}
	return chain[len(w.Chain):]
}

// isWildcard reports a whole-object merge onto this, which can supply
// any property.
func (w *PropertyWrite) isWildcard() bool {
	return len(w.Chain) == 1 && w.Chain[0] == "*"
}

func chainPrefix(prefix, chain []string) bool {
	if len(prefix) == 0 || len(prefix) > len(chain) {
		return false
	}
	for i, segment := range prefix {
		if chain[i] != segment {
			return false
		}
	}
	return true
}

func sortByPosDesc(writes []*PropertyWrite) {
	sort.SliceStable(writes, func(i, j int) bool {
		return writes[i].Pos > writes[j].Pos
	})
}

func declaredName(unit *ast.SourceUnit, class *sitter.Node) string {
	if name := class.ChildByFieldName("name"); name != nil {
		return unit.Content(name)
	}
	return ""
}

// expressionName recovers the bound name of a class expression such as
// const UserService = class { ... }.
func expressionName(unit *ast.SourceUnit, class *sitter.Node) string {
	if name := declaredName(unit, class); name != "" {
		return name
	}
	parent := class.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Type() {
	case "variable_declarator":
		if name := parent.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			return unit.Content(name)
		}
	case "assignment_expression":
		if left := parent.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			return unit.Content(left)
		}
	case "pair":
		if key := parent.ChildByFieldName("key"); key != nil {
			return ast.Unquote(unit.Content(key))
		}
	}
	return ""
}

func collect(unit *ast.SourceUnit, node *sitter.Node, name string) *Class {
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	class := &Class{
		Name:          name,
		Node:          node,
		Unit:          unit,
		methodsByName: map[string]*Method{},
	}
	if super := superClassName(unit, node); super != "" {
		class.SuperClass = super
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "field_definition", "public_field_definition":
			collectField(unit, class, member)
		case "method_definition":
			collectMethod(unit, class, member)
		}
	}
	return class
}

func superClassName(unit *ast.SourceUnit, node *sitter.Node) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "class_heritage" {
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if child.NamedChild(j).Type() == "identifier" {
					return unit.Content(child.NamedChild(j))
				}
			}
			return strings.TrimSpace(strings.TrimPrefix(unit.Content(child), "extends"))
		}
	}
	return ""
}

func collectField(unit *ast.SourceUnit, class *Class, member *sitter.Node) {
	nameNode := member.ChildByFieldName("property")
	if nameNode == nil {
		nameNode = member.ChildByFieldName("name")
	}
	value := member.ChildByFieldName("value")
	if nameNode == nil || value == nil {
		return
	}
	class.Writes = append(class.Writes, &PropertyWrite{
		Kind:  WriteField,
		Chain: []string{ast.Unquote(unit.Content(nameNode))},
		RHS:   value,
		Pos:   member.StartByte(),
		Class: class,
	})
}

func collectMethod(unit *ast.SourceUnit, class *Class, member *sitter.Node) {
	nameNode := member.ChildByFieldName("name")
	body := member.ChildByFieldName("body")
	if nameNode == nil {
		return
	}
	name := ast.Unquote(unit.Content(nameNode))
	method := &Method{
		Name:   name,
		Node:   member,
		Body:   body,
		Params: member.ChildByFieldName("parameters"),
		IsCtor: name == "constructor",
		Static: hasStaticModifier(unit, member),
	}
	class.Methods = append(class.Methods, method)
	if _, exists := class.methodsByName[name]; !exists {
		class.methodsByName[name] = method
	}
	if body != nil {
		collectWrites(unit, class, method, body)
	}
}

func hasStaticModifier(unit *ast.SourceUnit, member *sitter.Node) bool {
	for i := 0; i < int(member.ChildCount()); i++ {
		if unit.Content(member.Child(i)) == "static" {
			return true
		}
	}
	return false
}

// collectWrites walks a method body for this-rooted property writes.
// Bodies of nested non-arrow functions are skipped because `this`
// rebinds inside them.
func collectWrites(unit *ast.SourceUnit, class *Class, method *Method, node *sitter.Node) {
	switch node.Type() {
	case "function_declaration", "function_expression", "function",
		"generator_function", "generator_function_declaration":
		return
	case "assignment_expression":
		collectAssignment(unit, class, method, node)
	case "call_expression":
		collectMergeCall(unit, class, method, node)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectWrites(unit, class, method, node.NamedChild(i))
	}
}

func collectAssignment(unit *ast.SourceUnit, class *Class, method *Method, node *sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil {
		return
	}
	chain, pure := unit.MemberChain(left)
	if !pure || len(chain) < 2 || chain[0] != "this" {
		return
	}
	kind := WriteMethod
	if method.IsCtor {
		kind = WriteCtor
	}
	class.Writes = append(class.Writes, &PropertyWrite{
		Kind:   kind,
		Chain:  chain[1:],
		RHS:    right,
		Method: method.Name,
		Pos:    node.StartByte(),
		Class:  class,
	})
}

// collectMergeCall records Object.assign and Object.defineProperty calls
// whose target is this-rooted. Object literal sources contribute one
// write per key so that later sources win over earlier ones.
func collectMergeCall(unit *ast.SourceUnit, class *Class, method *Method, call *sitter.Node) {
	_, calleeChain, args := unit.CallParts(call)
	if len(calleeChain) != 2 || calleeChain[0] != "Object" {
		return
	}
	switch calleeChain[1] {
	case "assign":
		if len(args) < 2 {
			return
		}
		target, pure := unit.MemberChain(args[0])
		if !pure || len(target) == 0 || target[0] != "this" {
			return
		}
		base := target[1:]
		for _, source := range args[1:] {
			if source.Type() == "object" {
				for _, pair := range ast.NamedChildren(source) {
					if pair.Type() != "pair" {
						continue
					}
					key := pair.ChildByFieldName("key")
					value := pair.ChildByFieldName("value")
					if key == nil || value == nil {
						continue
					}
					class.Writes = append(class.Writes, &PropertyWrite{
						Kind:   WriteMerge,
						Chain:  append(append([]string(nil), base...), ast.Unquote(unit.Content(key))),
						RHS:    value,
						Method: method.Name,
						Pos:    pair.StartByte(),
						Class:  class,
					})
				}
				continue
			}
			chain := append([]string(nil), base...)
			if len(chain) == 0 {
				// merging straight onto this, the source object carries
				// the property values
				class.Writes = append(class.Writes, &PropertyWrite{
					Kind:   WriteMerge,
					Chain:  []string{"*"},
					RHS:    source,
					Method: method.Name,
					Pos:    source.StartByte(),
					Class:  class,
				})
				continue
			}
			class.Writes = append(class.Writes, &PropertyWrite{
				Kind:   WriteMerge,
				Chain:  chain,
				RHS:    source,
				Method: method.Name,
				Pos:    source.StartByte(),
				Class:  class,
			})
		}
	case "defineProperty":
		if len(args) < 3 {
			return
		}
		target, pure := unit.MemberChain(args[0])
		if !pure || len(target) == 0 || target[0] != "this" {
			return
		}
		if !ast.IsStringNode(args[1]) || args[2].Type() != "object" {
			return
		}
		key := unit.StringContent(args[1])
		for _, pair := range ast.NamedChildren(args[2]) {
			if pair.Type() != "pair" {
				continue
			}
			pairKey := pair.ChildByFieldName("key")
			if pairKey == nil || ast.Unquote(unit.Content(pairKey)) != "value" {
				continue
			}
			class.Writes = append(class.Writes, &PropertyWrite{
				Kind:   WriteDefine,
				Chain:  append(append([]string(nil), target[1:]...), key),
				RHS:    pair.ChildByFieldName("value"),
				Method: method.Name,
				Pos:    pair.StartByte(),
				Class:  class,
			})
		}
	}
}
