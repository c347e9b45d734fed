package configs

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/classes"
	"github.com/apirecon/apirecon/scope"
)

// HolderKind classifies where a loaded configuration value lives.
type HolderKind string

const (
	HolderBinding    HolderKind = "binding"
	HolderClassField HolderKind = "class-field"
	HolderObjectProp HolderKind = "object-prop"
	HolderAlias      HolderKind = "alias"
)

// Via names the idiom that loaded the configuration.
const (
	ViaJSONImport    = "json-import"
	ViaDynamicImport = "dynamic-import"
	ViaFetch         = "fetch"
	ViaXHR           = "xhr"
)

// Holder records one place a loaded configuration value is reachable
// from. Source names the loaded resource; Via names the loading idiom of
// the original seed.
type Holder struct {
	Kind    HolderKind
	Name    string
	Chain   []string
	Binding *scope.Binding
	Class   *classes.Class
	Unit    *ast.SourceUnit
	Source  string
	Via     string
}

// Tracker computes the transitive closure of configuration holders.
type Tracker struct {
	classStore   *classes.Store
	holders      []*Holder
	byBinding    map[*scope.Binding]*Holder
	byClassChain map[string]*Holder
}

// NewTracker creates a tracker backed by the run's class store.
func NewTracker(classStore *classes.Store) *Tracker {
	return &Tracker{
		classStore:   classStore,
		byBinding:    map[*scope.Binding]*Holder{},
		byClassChain: map[string]*Holder{},
	}
}

// Holders returns every discovered holder.
func (t *Tracker) Holders() []*Holder {
	return t.holders
}

// ForBinding reports whether a binding is fed by configuration.
func (t *Tracker) ForBinding(binding *scope.Binding) (*Holder, bool) {
	holder, ok := t.byBinding[binding]
	return holder, ok
}

// ForField reports whether a class property chain is fed by
// configuration, either through an exact field holder or a whole-object
// merge onto the class instance.
func (t *Tracker) ForField(class *classes.Class, chain []string) (*Holder, bool) {
	if class == nil || len(chain) == 0 {
		return nil, false
	}
	for prefix := len(chain); prefix > 0; prefix-- {
		if holder, ok := t.byClassChain[classChainKey(class, chain[:prefix])]; ok {
			return holder, true
		}
	}
	if holder, ok := t.byClassChain[classChainKey(class, []string{"*"})]; ok {
		return holder, true
	}
	return nil, false
}

func classChainKey(class *classes.Class, chain []string) string {
	return class.Unit.Path + "#" + class.Name + "." + strings.Join(chain, ".")
}

// Trace seeds holders from configuration-loading idioms in the unit and
// closes over aliasing, field assignment and constructor passing.
func (t *Tracker) Trace(unit *ast.SourceUnit, tree *scope.Tree) []*Holder {
	before := len(t.holders)
	seeds := t.seed(unit, tree)
	worklist := append([]*Holder(nil), seeds...)
	for _, holder := range seeds {
		t.record(holder)
	}
	for len(worklist) > 0 {
		holder := worklist[0]
		worklist = worklist[1:]
		for _, derived := range t.propagate(unit, tree, holder) {
			if t.record(derived) {
				worklist = append(worklist, derived)
			}
		}
	}
	return t.holders[before:]
}

func (t *Tracker) record(holder *Holder) bool {
	switch holder.Kind {
	case HolderBinding, HolderAlias:
		if holder.Binding == nil {
			return false
		}
		if _, exists := t.byBinding[holder.Binding]; exists {
			return false
		}
		t.byBinding[holder.Binding] = holder
	case HolderClassField:
		key := classChainKey(holder.Class, holder.Chain)
		if _, exists := t.byClassChain[key]; exists {
			return false
		}
		t.byClassChain[key] = holder
	}
	t.holders = append(t.holders, holder)
	return true
}

// seed finds the four loading idioms: JSON import, dynamic import, fetch
// of a settings resource, and XHR open on one.
func (t *Tracker) seed(unit *ast.SourceUnit, tree *scope.Tree) []*Holder {
	var seeds []*Holder

	for _, name := range tree.Module.Names() {
		binding, _ := tree.Module.Local(name)
		if binding.Kind == scope.BindImport && strings.HasSuffix(strings.ToLower(binding.ImportPath), ".json") {
			seeds = append(seeds, &Holder{
				Kind:    HolderBinding,
				Name:    name,
				Binding: binding,
				Unit:    unit,
				Source:  binding.ImportPath,
				Via:     ViaJSONImport,
			})
		}
	}

	ast.EachCall(unit.Root, func(call *sitter.Node) {
		callee, chain, args := unit.CallParts(call)
		if callee == nil || len(args) == 0 {
			return
		}
		switch {
		case callee.Type() == "import" || (len(chain) == 1 && chain[0] == "import"):
			if resource, ok := stringArg(unit, args[0]); ok {
				if holder := t.receivingBinding(unit, tree, call, resource, ViaDynamicImport); holder != nil {
					seeds = append(seeds, holder)
				}
			}
		case len(chain) == 1 && chain[0] == "fetch":
			if resource, ok := stringArg(unit, args[0]); ok && settingsResource(resource) {
				if holder := t.receivingBinding(unit, tree, call, resource, ViaFetch); holder != nil {
					seeds = append(seeds, holder)
				}
			}
		case len(chain) >= 2 && chain[len(chain)-1] == "open" && len(args) >= 2:
			if resource, ok := stringArg(unit, args[1]); ok && settingsResource(resource) {
				receiver := chain[:len(chain)-1]
				if len(receiver) == 1 {
					if binding, ok := tree.Resolve(receiver[0], call); ok {
						seeds = append(seeds, &Holder{
							Kind:    HolderBinding,
							Name:    receiver[0],
							Binding: binding,
							Unit:    unit,
							Source:  resource,
							Via:     ViaXHR,
						})
					}
				}
			}
		}
	})
	return seeds
}

func stringArg(unit *ast.SourceUnit, arg *sitter.Node) (string, bool) {
	if ast.IsStringNode(arg) {
		return unit.StringContent(arg), true
	}
	return "", false
}

func settingsResource(resource string) bool {
	lowered := strings.ToLower(resource)
	if strings.HasSuffix(lowered, ".json") {
		return true
	}
	for _, keyword := range []string{"config", "settings", "environment"} {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// receivingBinding finds the declared binding whose initializer contains
// the loading call, looking through await and promise chains.
func (t *Tracker) receivingBinding(unit *ast.SourceUnit, tree *scope.Tree, call *sitter.Node, source, via string) *Holder {
	declarator := ast.EnclosingOfType(call, "variable_declarator")
	if declarator == nil {
		return nil
	}
	name := declarator.ChildByFieldName("name")
	if name == nil || name.Type() != "identifier" {
		return nil
	}
	binding, ok := tree.Resolve(unit.Content(name), name)
	if !ok {
		return nil
	}
	return &Holder{
		Kind:    HolderBinding,
		Name:    unit.Content(name),
		Binding: binding,
		Unit:    unit,
		Source:  source,
		Via:     via,
	}
}

// propagate derives new holders reachable in one step from an existing
// binding holder: const aliasing, this.prop assignment, Object.assign
// merges, constructor-argument passing, and returns captured by a new
// const.
func (t *Tracker) propagate(unit *ast.SourceUnit, tree *scope.Tree, holder *Holder) []*Holder {
	if holder.Kind != HolderBinding && holder.Kind != HolderAlias {
		return nil
	}
	var derived []*Holder
	ast.EachNode(unit.Root, func(n *sitter.Node) {
		switch n.Type() {
		case "variable_declarator":
			derived = append(derived, t.propagateDeclarator(unit, tree, holder, n)...)
		case "assignment_expression":
			derived = append(derived, t.propagateAssignment(unit, tree, holder, n)...)
		case "call_expression":
			derived = append(derived, t.propagateMerge(unit, tree, holder, n)...)
		case "new_expression":
			derived = append(derived, t.propagateConstructor(unit, tree, holder, n)...)
		}
	})
	return derived
}

func (t *Tracker) refersTo(unit *ast.SourceUnit, tree *scope.Tree, holder *Holder, n *sitter.Node) bool {
	if n == nil || n.Type() != "identifier" || unit.Content(n) != holder.Name {
		return false
	}
	binding, ok := tree.Resolve(holder.Name, n)
	return ok && binding == holder.Binding
}

func (t *Tracker) propagateDeclarator(unit *ast.SourceUnit, tree *scope.Tree, holder *Holder, declarator *sitter.Node) []*Holder {
	value := declarator.ChildByFieldName("value")
	name := declarator.ChildByFieldName("name")
	if name == nil || name.Type() != "identifier" {
		return nil
	}
	direct := t.refersTo(unit, tree, holder, value)
	viaCall := false
	if !direct && value != nil && value.Type() == "call_expression" {
		// a call to a function that returns the holder
		if fnName := value.ChildByFieldName("function"); fnName != nil && fnName.Type() == "identifier" {
			viaCall = t.functionReturnsHolder(unit, tree, holder, unit.Content(fnName), value)
		}
	}
	if !direct && !viaCall {
		return nil
	}
	binding, ok := tree.Resolve(unit.Content(name), name)
	if !ok || binding == holder.Binding {
		return nil
	}
	return []*Holder{{
		Kind:    HolderAlias,
		Name:    unit.Content(name),
		Binding: binding,
		Unit:    unit,
		Source:  holder.Source,
		Via:     holder.Via,
	}}
}

func (t *Tracker) functionReturnsHolder(unit *ast.SourceUnit, tree *scope.Tree, holder *Holder, fnName string, site *sitter.Node) bool {
	binding, ok := tree.Resolve(fnName, site)
	if !ok || binding.Kind != scope.BindFunc || binding.Value == nil {
		return false
	}
	body := binding.Value.ChildByFieldName("body")
	if body == nil {
		return false
	}
	returns := false
	ast.EachNode(body, func(n *sitter.Node) {
		if returns || n.Type() != "return_statement" || n.NamedChildCount() == 0 {
			return
		}
		returns = t.refersTo(unit, tree, holder, n.NamedChild(0))
	})
	return returns
}

func (t *Tracker) propagateAssignment(unit *ast.SourceUnit, tree *scope.Tree, holder *Holder, assignment *sitter.Node) []*Holder {
	right := assignment.ChildByFieldName("right")
	if !t.refersTo(unit, tree, holder, right) {
		return nil
	}
	left := assignment.ChildByFieldName("left")
	chain, pure := unit.MemberChain(left)
	if !pure || len(chain) < 2 || chain[0] != "this" {
		return nil
	}
	class, ok := t.classStore.ClassAt(unit, assignment)
	if !ok {
		return nil
	}
	return []*Holder{{
		Kind:   HolderClassField,
		Name:   strings.Join(chain[1:], "."),
		Chain:  chain[1:],
		Class:  class,
		Unit:   unit,
		Source: holder.Source,
		Via:    holder.Via,
	}}
}

func (t *Tracker) propagateMerge(unit *ast.SourceUnit, tree *scope.Tree, holder *Holder, call *sitter.Node) []*Holder {
	_, chain, args := unit.CallParts(call)
	if len(chain) != 2 || chain[0] != "Object" || chain[1] != "assign" || len(args) < 2 {
		return nil
	}
	target, pure := unit.MemberChain(args[0])
	if !pure || len(target) == 0 || target[0] != "this" {
		return nil
	}
	feeds := false
	for _, source := range args[1:] {
		if t.refersTo(unit, tree, holder, source) {
			feeds = true
			break
		}
	}
	if !feeds {
		return nil
	}
	class, ok := t.classStore.ClassAt(unit, call)
	if !ok {
		return nil
	}
	fieldChain := target[1:]
	if len(fieldChain) == 0 {
		fieldChain = []string{"*"}
	}
	return []*Holder{{
		Kind:   HolderClassField,
		Name:   strings.Join(fieldChain, "."),
		Chain:  fieldChain,
		Class:  class,
		Unit:   unit,
		Source: holder.Source,
		Via:    holder.Via,
	}}
}

// propagateConstructor follows `new Foo(cfg)` into Foo's constructor
// parameter, making that parameter a holder in turn.
func (t *Tracker) propagateConstructor(unit *ast.SourceUnit, tree *scope.Tree, holder *Holder, expr *sitter.Node) []*Holder {
	ctorName := expr.ChildByFieldName("constructor")
	argList := expr.ChildByFieldName("arguments")
	if ctorName == nil || ctorName.Type() != "identifier" || argList == nil {
		return nil
	}
	args := ast.NamedChildren(argList)
	position := -1
	for i, arg := range args {
		if t.refersTo(unit, tree, holder, arg) {
			position = i
			break
		}
	}
	if position < 0 {
		return nil
	}
	var derived []*Holder
	for _, class := range t.classStore.Named(unit.Content(ctorName)) {
		ctor, ok := class.MethodNamed("constructor")
		if !ok || ctor.Params == nil {
			continue
		}
		params := ast.NamedChildren(ctor.Params)
		if position >= len(params) {
			continue
		}
		param := params[position]
		if param.Type() != "identifier" {
			continue
		}
		paramTree := tree
		if class.Unit != unit {
			continue
		}
		if binding, ok := paramTree.Resolve(unit.Content(param), ctor.Body); ok {
			derived = append(derived, &Holder{
				Kind:    HolderBinding,
				Name:    unit.Content(param),
				Binding: binding,
				Unit:    class.Unit,
				Source:  holder.Source,
				Via:     holder.Via,
			})
		}
	}
	return derived
}
