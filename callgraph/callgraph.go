// Package callgraph resolves the service-method idiom: a component calls
// this.<service>.<method>(...) and subscribes to the result, while the
// actual network call lives inside the service class's method. A
// whole-program index over service-like classes must be complete before
// any resolution runs.
package callgraph

import (
	"strings"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/catalog"
	"github.com/apirecon/apirecon/classes"
	"github.com/apirecon/apirecon/detect"
	"github.com/apirecon/apirecon/eval"
	"github.com/apirecon/apirecon/finding"
	"github.com/apirecon/apirecon/resolve"
	"github.com/apirecon/apirecon/scope"
	"github.com/apirecon/apirecon/value"
)

// Entry records the network call found inside one service method. The
// candidate and resolver are retained so the call can be re-resolved
// with a caller's argument values.
type Entry struct {
	Class     *classes.Class
	Method    *classes.Method
	Candidate *detect.Candidate
	Resolver  *resolve.Resolver
	Call      *finding.ResolvedCall
}

// Index maps ClassName.methodName keys to recorded service calls.
type Index struct {
	catalog *catalog.Catalog
	byKey   map[string]*Entry
	names   map[string]string
	aliases map[string]string
}

// NewIndex creates an empty service-method index.
func NewIndex(cat *catalog.Catalog) *Index {
	return &Index{
		catalog: cat,
		byKey:   map[string]*Entry{},
		names:   map[string]string{},
		aliases: map[string]string{},
	}
}

// Len returns the number of indexed service methods.
func (ix *Index) Len() int {
	return len(ix.byKey)
}

// AddUnit indexes every service-like class of one unit. The detector and
// resolver must belong to the same unit.
func (ix *Index) AddUnit(unit *ast.SourceUnit, tree *scope.Tree, store *classes.Store,
	detector *detect.Detector, resolver *resolve.Resolver) {
	for _, class := range store.All() {
		if class.Unit != unit || class.Name == "" {
			continue
		}
		if !ix.catalog.IsServiceName(class.Name) {
			continue
		}
		normalized := strings.ToLower(ix.catalog.NormalizeServiceName(class.Name))
		ix.names[normalized] = normalized
		for _, method := range class.Methods {
			if method.IsCtor || method.Body == nil {
				continue
			}
			ix.addMethod(unit, class, method, normalized, detector, resolver)
		}
	}
	ix.collectAliases(unit, tree)
}

func (ix *Index) addMethod(unit *ast.SourceUnit, class *classes.Class, method *classes.Method,
	normalized string, detector *detect.Detector, resolver *resolve.Resolver) {
	for _, candidate := range detector.ScanNode(unit, method.Body) {
		if candidate.Subscribe {
			continue
		}
		key := normalized + "." + strings.ToLower(method.Name)
		if _, exists := ix.byKey[key]; exists {
			return
		}
		ix.byKey[key] = &Entry{
			Class:     class,
			Method:    method,
			Candidate: candidate,
			Resolver:  resolver,
			Call:      resolver.Extract(candidate),
		}
		return
	}
}

// collectAliases links module-level const aliases to indexed classes,
// covering the minifier pattern `const UserService = _UserService`.
func (ix *Index) collectAliases(unit *ast.SourceUnit, tree *scope.Tree) {
	for _, name := range tree.Module.Names() {
		binding, _ := tree.Module.Local(name)
		if binding.Value == nil || binding.Value.Type() != "identifier" {
			continue
		}
		target := strings.ToLower(ix.catalog.NormalizeServiceName(unit.Content(binding.Value)))
		if _, indexed := ix.names[target]; indexed {
			ix.aliases[strings.ToLower(ix.catalog.NormalizeServiceName(name))] = target
		}
	}
}

// Resolve maps a subscribe-idiom candidate to the network call recorded
// for the referenced service method. The caller's evaluator supplies
// argument values so parameterized URLs resolve against the real call
// site.
func (ix *Index) Resolve(candidate *detect.Candidate, callerEval *eval.Evaluator) (*finding.ResolvedCall, bool) {
	if !candidate.Subscribe || len(candidate.InnerChain) < 3 {
		return nil, false
	}
	property := candidate.InnerChain[1]
	methodName := candidate.InnerChain[len(candidate.InnerChain)-1]

	className, ok := ix.matchClass(property)
	if !ok {
		return nil, false
	}
	entry, ok := ix.byKey[className+"."+strings.ToLower(methodName)]
	if !ok {
		return nil, false
	}

	env := ix.bindArguments(entry, candidate, callerEval)
	call := entry.Resolver.ExtractWithEnv(entry.Candidate, env)
	call.Source = finding.SourceServiceMethod
	call.Location = candidate.Location
	ix.enrich(call, candidate, callerEval)
	return call, true
}

// matchClass maps a member property name to an indexed class: exact
// match first, then alias, then best partial match.
func (ix *Index) matchClass(property string) (string, bool) {
	lowered := strings.ToLower(ix.catalog.NormalizeServiceName(property))
	if _, ok := ix.names[lowered]; ok {
		return lowered, true
	}
	if target, ok := ix.aliases[lowered]; ok {
		return target, true
	}
	best := ""
	for name := range ix.names {
		if strings.Contains(name, lowered) || strings.Contains(lowered, name) {
			if len(name) > len(best) {
				best = name
			}
		}
	}
	if best != "" {
		return best, true
	}
	return "", false
}

// bindArguments evaluates the caller's arguments in the caller's unit
// and binds them to the service method's parameter names.
func (ix *Index) bindArguments(entry *Entry, candidate *detect.Candidate, callerEval *eval.Evaluator) eval.Env {
	if entry.Method.Params == nil || candidate.InnerCall == nil {
		return nil
	}
	argList := candidate.InnerCall.ChildByFieldName("arguments")
	if argList == nil {
		return nil
	}
	args := ast.NamedChildren(argList)
	if len(args) == 0 {
		return nil
	}
	env := eval.Env{}
	params := ast.NamedChildren(entry.Method.Params)
	for i, param := range params {
		if i >= len(args) {
			break
		}
		if param.Type() == "required_parameter" || param.Type() == "optional_parameter" {
			if pattern := param.ChildByFieldName("pattern"); pattern != nil {
				param = pattern
			}
		}
		if param.Type() != "identifier" {
			continue
		}
		env[entry.Class.Unit.Content(param)] = callerEval.Evaluate(args[i])
	}
	return env
}

// enrich copies a body from the subscribe call site when the service
// method exposed none, e.g. createUser(payload) called with a literal.
func (ix *Index) enrich(call *finding.ResolvedCall, candidate *detect.Candidate, callerEval *eval.Evaluator) {
	if call.RequestBody != "" || candidate.InnerCall == nil {
		return
	}
	argList := candidate.InnerCall.ChildByFieldName("arguments")
	if argList == nil {
		return
	}
	if call.Method == "GET" || call.Method == "HEAD" {
		return
	}
	for _, arg := range ast.NamedChildren(argList) {
		evaluated := callerEval.Evaluate(arg)
		if evaluated.Kind() == value.KindObject {
			call.RequestBody = value.Text(evaluated)
			return
		}
	}
}
