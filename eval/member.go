package eval

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/classes"
	"github.com/apirecon/apirecon/value"
)

// globalRoots are ambient objects whose leading segment carries no value
// of its own.
var globalRoots = map[string]bool{
	"window":     true,
	"globalThis": true,
	"global":     true,
	"self":       true,
}

func (e *Evaluator) evalMember(n *sitter.Node, env Env, st *state) value.Value {
	chain, pure := e.unit.MemberChain(n)
	if !pure || len(chain) == 0 {
		// an impure chain, evaluate the object and descend the property
		object := n.ChildByFieldName("object")
		property := n.ChildByFieldName("property")
		if object != nil && property != nil {
			base := e.eval(object, env, st)
			if resolved, ok := value.AsObject(base); ok {
				if entry := resolved.Get(e.unit.Content(property)); entry != nil {
					return entry
				}
			}
			return value.PlaceholderFor(e.unit.Content(property))
		}
		return value.PlaceholderFor(e.placeholderName(n))
	}

	if chain[0] == "this" {
		return e.ResolveThisChain(chain, n, env, st)
	}
	if globalRoots[chain[0]] && len(chain) > 1 {
		chain = chain[1:]
	}
	if len(chain) == 1 {
		return e.resolveIdentifier(chain[0], n, env, st)
	}

	// environment overlay can hold the root object
	if bound, ok := env[chain[0]]; ok {
		result := e.dig(bound, chain[1:], st)
		if value.IsResolved(result) {
			return result
		}
	}

	if binding, ok := e.scopes.Resolve(chain[0], n); ok {
		base := e.resolveBinding(binding, env, st)
		result := e.dig(base, chain[1:], st)
		if value.IsResolved(result) {
			return result
		}
		// a configuration-fed binding falls back to the scanned table
		if e.holders != nil {
			if _, isHolder := e.holders.ForBinding(binding); isHolder {
				if entry := e.lookupConfig(chain[1:]); entry != "" {
					return value.String{Val: entry}
				}
			}
		}
		if result != nil && result.Kind() != value.KindPlaceholder {
			return result
		}
	}

	// last resort: any chain whose segments exist in scanned config
	if entry := e.lookupConfig(chain); entry != "" {
		return value.String{Val: entry}
	}
	if entry := e.lookupConfig(chain[1:]); entry != "" {
		return value.String{Val: entry}
	}
	return value.PlaceholderFor(strings.Join(chain, "."))
}

// ResolveThisChain resolves a this-rooted property read against the
// enclosing class's property writes, then configuration holders.
func (e *Evaluator) ResolveThisChain(chain []string, at *sitter.Node, env Env, st *state) value.Value {
	if st == nil {
		st = newState()
	}
	if env == nil {
		env = Env{}
	}
	fields := chain[1:]
	if len(fields) == 0 || e.classes == nil {
		return value.PlaceholderFor("this")
	}
	class, ok := e.classes.ClassAt(e.unit, at)
	if !ok {
		return value.PlaceholderFor(strings.Join(fields, "."))
	}
	site := classes.ReadSite{Pos: at.StartByte()}
	if method, ok := class.MethodAt(at); ok {
		site.Method = method.Name
	}

	var fallback value.Value
	for _, write := range e.classes.WritesFor(class, fields, site) {
		candidate := e.eval(write.RHS, Env{}, st)
		candidate = e.dig(candidate, write.Remainder(fields), st)
		if value.IsResolved(candidate) {
			return candidate
		}
		if fallback == nil && candidate.Kind() != value.KindPlaceholder {
			fallback = candidate
		}
	}

	if e.holders != nil {
		if _, ok := e.holders.ForField(class, fields); ok {
			if entry := e.lookupConfig(fields); entry != "" {
				return value.String{Val: entry}
			}
		}
	}
	if fallback != nil {
		return fallback
	}
	return value.PlaceholderFor(strings.Join(fields, "."))
}

// ConfigValue resolves a bare name against the scanned configuration
// table, preferring endpoint-shaped entries.
func (e *Evaluator) ConfigValue(name string) string {
	return e.lookupConfig([]string{name})
}

// lookupConfig consults the flattened configuration table by full path
// first, then by bare key of the final segment, preferring endpoint
// shaped entries.
func (e *Evaluator) lookupConfig(chain []string) string {
	if e.config == nil || len(chain) == 0 {
		return ""
	}
	if entry, ok := e.config.Lookup(strings.Join(chain, ".")); ok {
		return entry.Value
	}
	for _, entry := range e.config.LookupKey(chain[len(chain)-1]) {
		if entry.IsAPIEndpoint || entry.IsURL {
			return entry.Value
		}
	}
	return ""
}
