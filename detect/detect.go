// Package detect recognizes HTTP call sites by matching call expressions
// against the idiom catalog: native request functions, client verb
// methods, data hooks, route registration and subscribe chains.
package detect

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/catalog"
)

// Candidate is one call expression recognized as a potential HTTP call.
type Candidate struct {
	Node     *sitter.Node
	Unit     *ast.SourceUnit
	Callee   string
	Chain    []string
	Args     []*sitter.Node
	Category *catalog.Category
	Library  string
	// MethodHint is the HTTP verb implied by the callee name, empty when
	// the name carries no verb.
	MethodHint string
	Location   ast.Location

	// Subscribe marks the call-then-subscribe idiom; InnerCall and
	// InnerChain describe the this-rooted service call being subscribed.
	Subscribe  bool
	InnerCall  *sitter.Node
	InnerChain []string
}

// Detector matches call sites against a catalog.
type Detector struct {
	catalog *catalog.Catalog
}

// NewDetector creates a detector over the given catalog.
func NewDetector(cat *catalog.Catalog) *Detector {
	return &Detector{catalog: cat}
}

// Scan walks a unit and returns every candidate call site in source
// order.
func (d *Detector) Scan(unit *ast.SourceUnit) []*Candidate {
	var candidates []*Candidate
	ast.EachCall(unit.Root, func(call *sitter.Node) {
		if candidate, ok := d.Match(unit, call); ok {
			candidates = append(candidates, candidate)
		}
	})
	return candidates
}

// ScanNode walks one subtree, used when only a method body is of
// interest.
func (d *Detector) ScanNode(unit *ast.SourceUnit, root *sitter.Node) []*Candidate {
	var candidates []*Candidate
	ast.EachCall(root, func(call *sitter.Node) {
		if candidate, ok := d.Match(unit, call); ok {
			candidates = append(candidates, candidate)
		}
	})
	return candidates
}

// Match inspects a single call expression. Lifecycle-effect wrappers are
// not matched directly; the nested call inside their body matches on its
// own during the walk.
func (d *Detector) Match(unit *ast.SourceUnit, call *sitter.Node) (*Candidate, bool) {
	callee := call.ChildByFieldName("function")
	if callee == nil {
		return nil, false
	}
	args := argumentsOf(call)

	switch callee.Type() {
	case "identifier":
		name := unit.Content(callee)
		category, ok := d.catalog.ByCallee(name)
		if !ok || category.Kind == catalog.KindEffect {
			return nil, false
		}
		return &Candidate{
			Node:     call,
			Unit:     unit,
			Callee:   name,
			Chain:    []string{name},
			Args:     args,
			Category: category,
			Library:  category.Library,
			Location: unit.Location(call),
		}, true
	case "member_expression":
		return d.matchMember(unit, call, callee, args)
	}
	return nil, false
}

func (d *Detector) matchMember(unit *ast.SourceUnit, call, callee *sitter.Node, args []*sitter.Node) (*Candidate, bool) {
	property := callee.ChildByFieldName("property")
	object := callee.ChildByFieldName("object")
	if property == nil || object == nil {
		return nil, false
	}
	name := unit.Content(property)
	chain, _ := unit.MemberChain(callee)

	if name == "subscribe" {
		if candidate, ok := d.matchSubscribe(unit, call, object, args, chain); ok {
			return candidate, true
		}
	}

	receiverText := unit.Content(object)
	for _, category := range d.catalog.ByMethod(name) {
		if category.Kind == catalog.KindSubscribe {
			continue
		}
		if !category.ReceiverMatches(receiverText) {
			continue
		}
		hint, _ := d.catalog.VerbForSuffix(name)
		return &Candidate{
			Node:       call,
			Unit:       unit,
			Callee:     renderCallee(unit, callee, chain),
			Chain:      chain,
			Args:       args,
			Category:   category,
			Library:    category.Library,
			MethodHint: hint,
			Location:   unit.Location(call),
		}, true
	}
	return nil, false
}

// matchSubscribe recognizes this.<service>.<method>(...).subscribe(...),
// where the network call lives inside the service method rather than at
// the call site.
func (d *Detector) matchSubscribe(unit *ast.SourceUnit, call, object *sitter.Node, args []*sitter.Node, chain []string) (*Candidate, bool) {
	inner := object
	// tolerate .pipe(...) and similar operators between the service call
	// and the subscribe
	for inner != nil && inner.Type() == "call_expression" {
		innerCallee := inner.ChildByFieldName("function")
		if innerCallee == nil {
			return nil, false
		}
		innerChain, pure := unit.MemberChain(innerCallee)
		if pure && len(innerChain) >= 3 && innerChain[0] == "this" {
			cat := d.subscribeCategory()
			if cat == nil {
				return nil, false
			}
			return &Candidate{
				Node:       call,
				Unit:       unit,
				Callee:     strings.Join(innerChain, ".") + "().subscribe",
				Chain:      chain,
				Args:       args,
				Category:   cat,
				Library:    cat.Library,
				Location:   unit.Location(call),
				Subscribe:  true,
				InnerCall:  inner,
				InnerChain: innerChain,
			}, true
		}
		if innerCallee.Type() == "member_expression" {
			inner = innerCallee.ChildByFieldName("object")
			continue
		}
		return nil, false
	}
	return nil, false
}

func (d *Detector) subscribeCategory() *catalog.Category {
	for _, category := range d.catalog.ByMethod("subscribe") {
		if category.Kind == catalog.KindSubscribe {
			return category
		}
	}
	return nil
}

func renderCallee(unit *ast.SourceUnit, callee *sitter.Node, chain []string) string {
	if len(chain) > 0 {
		return strings.Join(chain, ".")
	}
	text := unit.Content(callee)
	if len(text) > 48 {
		return text[:48]
	}
	return text
}

func argumentsOf(call *sitter.Node) []*sitter.Node {
	if list := call.ChildByFieldName("arguments"); list != nil {
		return ast.NamedChildren(list)
	}
	return nil
}
