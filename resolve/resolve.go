// Package resolve turns detected call-site candidates into resolved
// findings: an HTTP method, a best-effort URL with a confidence tier,
// and whatever request body and headers the call site reveals.
package resolve

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/apirecon/apirecon/catalog"
	"github.com/apirecon/apirecon/detect"
	"github.com/apirecon/apirecon/eval"
	"github.com/apirecon/apirecon/finding"
	"github.com/apirecon/apirecon/value"
)

// Resolver extracts findings for one source unit.
type Resolver struct {
	catalog   *catalog.Catalog
	evaluator *eval.Evaluator
}

// NewResolver creates a resolver bound to a unit's evaluator.
func NewResolver(cat *catalog.Catalog, evaluator *eval.Evaluator) *Resolver {
	return &Resolver{catalog: cat, evaluator: evaluator}
}

// Extract resolves one candidate. It always returns a call: candidates
// that resist every strategy get a symbolic URL at low confidence.
func (r *Resolver) Extract(candidate *detect.Candidate) *finding.ResolvedCall {
	return r.ExtractWithEnv(candidate, nil)
}

// ExtractWithEnv resolves a candidate with caller-supplied parameter
// values, as when a service method is resolved on behalf of its caller.
func (r *Resolver) ExtractWithEnv(candidate *detect.Candidate, env eval.Env) *finding.ResolvedCall {
	urlArg, optionArgs := r.splitArgs(candidate)

	call := &finding.ResolvedCall{
		Library:        candidate.Library,
		Authentication: finding.AuthUnknown,
		Location:       candidate.Location,
	}

	options, body, headers := r.requestShape(candidate, optionArgs, env)
	call.RequestBody = body
	call.RequestHeaders = headers
	call.Authentication = classifyAuth(headers)

	call.Method = r.method(candidate, options, body != "")
	call.URL, call.Source, call.Confidence = r.url(candidate, urlArg, options, env)
	return call
}

// splitArgs locates the URL-bearing argument and the arguments that may
// carry request options, per idiom shape.
func (r *Resolver) splitArgs(candidate *detect.Candidate) (*sitter.Node, []*sitter.Node) {
	args := candidate.Args
	if len(args) == 0 {
		return nil, nil
	}
	switch candidate.Category.Name {
	case "xhr":
		// open(method, url)
		if len(args) >= 2 {
			return args[1], nil
		}
		return nil, nil
	case "jquery-ajax":
		// ajax(settings) or ajax(url, settings)
		if args[0].Type() == "object" {
			return nil, args
		}
		return args[0], args[1:]
	case "axios-direct":
		// axios(config) or axios(url, config)
		if args[0].Type() == "object" {
			return nil, args
		}
		return args[0], args[1:]
	default:
		return args[0], args[1:]
	}
}

// requestShape evaluates option-bearing arguments into an options
// object, a rendered body and a header map.
func (r *Resolver) requestShape(candidate *detect.Candidate, optionArgs []*sitter.Node, env eval.Env) (value.Object, string, map[string]string) {
	var options value.Object
	var body string
	haveOptions := false

	for _, arg := range optionArgs {
		evaluated := r.evaluator.EvaluateWithEnv(arg, env)
		object, isObject := value.AsObject(evaluated)
		if !isObject {
			if body == "" && bodyShaped(evaluated) {
				body = value.Text(evaluated)
			}
			continue
		}
		if hasRequestKeys(object) {
			if !haveOptions {
				options = object
				haveOptions = true
			}
			continue
		}
		// an object with no request keys positioned as data is the body
		if body == "" {
			body = value.Text(evaluated)
		}
	}

	if haveOptions {
		if body == "" {
			for _, key := range []string{"body", "data"} {
				if entry := options.Get(key); entry != nil {
					body = value.Text(entry)
					break
				}
			}
		}
		return options, body, headerMap(options)
	}
	return value.Object{}, body, nil
}

func hasRequestKeys(object value.Object) bool {
	for _, key := range []string{"method", "type", "headers", "body", "data", "url", "uri", "params", "auth", "credentials"} {
		if object.Get(key) != nil {
			return true
		}
	}
	return false
}

func bodyShaped(v value.Value) bool {
	switch v.Kind() {
	case value.KindObject, value.KindArray:
		return true
	case value.KindString:
		text, _ := value.AsString(v)
		return strings.HasPrefix(strings.TrimSpace(text), "{")
	}
	return false
}

func headerMap(options value.Object) map[string]string {
	entry := options.Get("headers")
	if entry == nil {
		return nil
	}
	object, ok := value.AsObject(entry)
	if !ok {
		return nil
	}
	if len(object.Order) == 0 {
		return nil
	}
	headers := make(map[string]string, len(object.Order))
	for _, key := range object.Order {
		headers[key] = value.Text(object.Entries[key])
	}
	return headers
}

func classifyAuth(headers map[string]string) string {
	if len(headers) == 0 {
		return finding.AuthUnknown
	}
	for key, val := range headers {
		lowered := strings.ToLower(key)
		for _, marker := range []string{"authorization", "x-api-key", "cookie", "token"} {
			if strings.Contains(lowered, marker) {
				return finding.AuthAuthenticated
			}
		}
		if strings.Contains(strings.ToLower(val), "bearer ") {
			return finding.AuthAuthenticated
		}
	}
	return finding.AuthAnonymous
}

// method classifies the HTTP verb: callee suffix, then an explicit
// method/type option, then a body-driven default.
func (r *Resolver) method(candidate *detect.Candidate, options value.Object, hasBody bool) string {
	if candidate.MethodHint != "" {
		return candidate.MethodHint
	}
	if candidate.Category.Name == "xhr" && len(candidate.Args) >= 1 {
		if verb := r.literalVerb(candidate.Args[0]); verb != "" {
			return verb
		}
	}
	for _, key := range []string{"method", "type"} {
		if entry := options.Get(key); entry != nil {
			if text, ok := value.AsString(entry); ok && text != "" {
				return strings.ToUpper(text)
			}
		}
	}
	if hasBody {
		return "POST"
	}
	return "GET"
}

func (r *Resolver) literalVerb(arg *sitter.Node) string {
	evaluated := r.evaluator.Evaluate(arg)
	if text, ok := value.AsString(evaluated); ok && text != "" {
		return strings.ToUpper(strings.TrimSpace(text))
	}
	return ""
}

// url runs the resolution strategies in order and reports the winning
// strategy and its confidence tier.
func (r *Resolver) url(candidate *detect.Candidate, urlArg *sitter.Node, options value.Object, env eval.Env) (string, string, finding.Confidence) {
	// option objects can carry the URL when no positional argument does
	if urlArg == nil {
		for _, key := range []string{"url", "uri", "endpoint"} {
			if entry := options.Get(key); entry != nil {
				text := value.Text(entry)
				if text != "" {
					if value.IsResolved(entry) {
						return text, finding.SourceLiteral, finding.High
					}
					if urlShaped(text) {
						return text, finding.SourceTemplate, finding.Medium
					}
				}
			}
		}
		return r.fallback(candidate)
	}

	switch urlArg.Type() {
	case "string":
		text := candidate.Unit.StringContent(urlArg)
		if text != "" {
			return text, finding.SourceLiteral, finding.High
		}
	case "template_string":
		evaluated := r.evaluator.EvaluateWithEnv(urlArg, env)
		text := value.Text(evaluated)
		if value.IsResolved(evaluated) {
			return text, finding.SourceTemplate, finding.High
		}
		if urlShaped(text) {
			return text, finding.SourceTemplate, finding.Medium
		}
		if text != "" {
			return text, finding.SourceTemplate, finding.Low
		}
	case "member_expression", "subscript_expression":
		evaluated := r.evaluator.EvaluateWithEnv(urlArg, env)
		if text, ok := value.AsString(evaluated); ok && text != "" {
			if value.IsResolved(evaluated) {
				return text, finding.SourceMember, finding.Medium
			}
			if urlShaped(text) {
				return text, finding.SourceMember, finding.Low
			}
		}
	case "identifier":
		evaluated := r.evaluator.EvaluateWithEnv(urlArg, env)
		if value.IsResolved(evaluated) {
			if text := value.Text(evaluated); text != "" {
				return text, finding.SourceBinding, finding.Medium
			}
		}
		if text, source, confidence, ok := r.configLookup(candidate.Unit.Content(urlArg)); ok {
			return text, source, confidence
		}
		if text := value.Text(evaluated); urlShaped(text) {
			return text, finding.SourceBinding, finding.Low
		}
	case "binary_expression":
		evaluated := r.evaluator.EvaluateWithEnv(urlArg, env)
		text := value.Text(evaluated)
		if value.IsResolved(evaluated) && text != "" {
			return text, finding.SourceConcat, finding.Medium
		}
		if urlShaped(text) {
			return text, finding.SourceConcat, finding.Low
		}
	default:
		evaluated := r.evaluator.EvaluateWithEnv(urlArg, env)
		if value.IsResolved(evaluated) {
			if text := value.Text(evaluated); text != "" {
				return text, finding.SourceBinding, finding.Medium
			}
		}
		if text := value.Text(evaluated); urlShaped(text) {
			return text, finding.SourceBinding, finding.Low
		}
	}
	return r.fallback(candidate)
}

func (r *Resolver) configLookup(name string) (string, string, finding.Confidence, bool) {
	entry := r.evaluator.ConfigValue(name)
	if entry == "" {
		return "", "", finding.Low, false
	}
	return entry, finding.SourceConfig, finding.Medium, true
}

// fallback synthesizes the symbolic URL that guarantees every candidate
// yields exactly one finding.
func (r *Resolver) fallback(candidate *detect.Candidate) (string, string, finding.Confidence) {
	callee := candidate.Callee
	if callee == "" {
		callee = "call"
	}
	callee = strings.Map(func(ch rune) rune {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			return ch
		case ch == '.', ch == '_':
			return ch
		}
		return '_'
	}, callee)
	return "{unresolved_call_for_" + callee + "}", finding.SourceUnresolved, finding.Low
}

// urlShaped reports whether a partially resolved string still has URL
// structure worth keeping at medium confidence.
func urlShaped(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.ContainsAny(trimmed, " \t\n") {
		return false
	}
	stripped := stripPlaceholders(trimmed)
	if stripped == "" {
		return false
	}
	for _, prefix := range []string{"http://", "https://", "ws://", "wss://", "//", "/", "./", "../"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return strings.Contains(stripped, "/")
}

func stripPlaceholders(text string) string {
	var builder strings.Builder
	depth := 0
	for _, ch := range text {
		switch ch {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				builder.WriteRune(ch)
			}
		}
	}
	return builder.String()
}

// VerbFromMethodName guesses an HTTP verb from a service-method name,
// used when a subscribe-idiom call cannot be traced into its service.
func VerbFromMethodName(cat *catalog.Catalog, name string) string {
	lowered := strings.ToLower(name)
	if verb, ok := cat.VerbForSuffix(lowered); ok {
		return verb
	}
	prefixes := []struct {
		prefix string
		verb   string
	}{
		{"get", "GET"}, {"fetch", "GET"}, {"load", "GET"}, {"list", "GET"},
		{"find", "GET"}, {"read", "GET"}, {"search", "GET"}, {"query", "GET"},
		{"create", "POST"}, {"add", "POST"}, {"post", "POST"}, {"save", "POST"},
		{"send", "POST"}, {"submit", "POST"}, {"register", "POST"}, {"login", "POST"},
		{"update", "PUT"}, {"put", "PUT"}, {"edit", "PUT"}, {"modify", "PUT"},
		{"patch", "PATCH"},
		{"delete", "DELETE"}, {"remove", "DELETE"}, {"destroy", "DELETE"},
	}
	for _, entry := range prefixes {
		if strings.HasPrefix(lowered, entry.prefix) {
			return entry.verb
		}
	}
	return "GET"
}
