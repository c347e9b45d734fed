package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/catalog"
	"github.com/apirecon/apirecon/classes"
	"github.com/apirecon/apirecon/configs"
	"github.com/apirecon/apirecon/detect"
	"github.com/apirecon/apirecon/eval"
	"github.com/apirecon/apirecon/finding"
	"github.com/apirecon/apirecon/scope"
)

func resolveAll(t *testing.T, source string) []*finding.ResolvedCall {
	t.Helper()
	return resolveWithConfig(t, source, nil)
}

func resolveWithConfig(t *testing.T, source string, table *configs.Table) []*finding.ResolvedCall {
	t.Helper()
	unit, err := ast.NewParser().Parse(context.Background(), []byte(source), "app.js")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	tree := scope.Build(unit)
	store := classes.NewStore()
	store.Collect(unit)
	tracker := configs.NewTracker(store)
	tracker.Trace(unit, tree)
	evaluator := eval.New(unit, tree, store, table, tracker)
	resolver := NewResolver(cat, evaluator)

	var calls []*finding.ResolvedCall
	for _, candidate := range detect.NewDetector(cat).Scan(unit) {
		calls = append(calls, resolver.Extract(candidate))
	}
	return calls
}

func one(t *testing.T, source string) *finding.ResolvedCall {
	t.Helper()
	calls := resolveAll(t, source)
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	return calls[0]
}

func TestResolver_Literal(t *testing.T) {
	call := one(t, `fetch("/api/users");`)
	assert.Equal(t, "GET", call.Method)
	assert.Equal(t, "/api/users", call.URL)
	assert.Equal(t, finding.High, call.Confidence)
	assert.Equal(t, finding.SourceLiteral, call.Source)
	assert.Equal(t, "fetch", call.Library)
	assert.Equal(t, 1, call.Location.Line)
}

func TestResolver_MethodClassification(t *testing.T) {
	testCases := []struct {
		description string
		source      string
		method      string
	}{
		{
			description: "verb suffix",
			source:      `axios.put("/api/items/1", data);`,
			method:      "PUT",
		},
		{
			description: "options method field",
			source:      `fetch("/api/items", { method: "DELETE" });`,
			method:      "DELETE",
		},
		{
			description: "jquery type field",
			source:      `$.ajax({ url: "/api/items", type: "post" });`,
			method:      "POST",
		},
		{
			description: "body implies POST",
			source:      `fetch("/api/items", { body: JSON.stringify(payload) });`,
			method:      "POST",
		},
		{
			description: "bare fetch defaults to GET",
			source:      `fetch("/api/items");`,
			method:      "GET",
		},
		{
			description: "xhr verb from first argument",
			source:      `xhr.open("PATCH", "/api/items/2");`,
			method:      "PATCH",
		},
	}
	for _, testCase := range testCases {
		calls := resolveAll(t, testCase.source)
		if !assert.Len(t, calls, 1, testCase.description) {
			continue
		}
		assert.Equal(t, testCase.method, calls[0].Method, testCase.description)
	}
}

func TestResolver_TemplateConfidence(t *testing.T) {
	resolved := one(t, `
const base = "https://api.test";
fetch(`+"`${base}/users`"+`);
`)
	assert.Equal(t, "https://api.test/users", resolved.URL)
	assert.Equal(t, finding.High, resolved.Confidence, "fully resolved template")

	partial := one(t, `
const base = "https://api.test";
fetch(`+"`${base}/users/${id}`"+`);
`)
	assert.Equal(t, "https://api.test/users/{id}", partial.URL)
	assert.Equal(t, finding.Medium, partial.Confidence, "url-shaped partial template stays medium")
	assert.Equal(t, finding.SourceTemplate, partial.Source)

	shapeless := one(t, `fetch(` + "`${a}${b}`" + `);`)
	assert.Equal(t, finding.Low, shapeless.Confidence)
}

func TestResolver_BindingAndConcat(t *testing.T) {
	bound := one(t, `
const endpoint = "/api/orders";
fetch(endpoint);
`)
	assert.Equal(t, "/api/orders", bound.URL)
	assert.Equal(t, finding.Medium, bound.Confidence)
	assert.Equal(t, finding.SourceBinding, bound.Source)

	concat := one(t, `
const base = "/api";
fetch(base + "/orders/" + 7);
`)
	assert.Equal(t, "/api/orders/7", concat.URL)
	assert.Equal(t, finding.SourceConcat, concat.Source)
	assert.Equal(t, finding.Medium, concat.Confidence)

	partial := one(t, `
const base = "/api";
fetch(base + "/orders/" + orderId);
`)
	assert.Equal(t, "/api/orders/{orderId}", partial.URL)
	assert.Equal(t, finding.SourceConcat, partial.Source)
	assert.Equal(t, finding.Low, partial.Confidence, "a concatenation keeping a placeholder cannot rank above low")
}

func TestResolver_MemberChain(t *testing.T) {
	calls := resolveAll(t, `
class Api {
  constructor() {
    this.baseURL = "https://api.test/v1";
  }
  list() {
    return this.http.get(this.baseURL);
  }
}
`)
	if !assert.Len(t, calls, 1) {
		return
	}
	assert.Equal(t, "https://api.test/v1", calls[0].URL)
	assert.Equal(t, finding.SourceMember, calls[0].Source)
	assert.Equal(t, finding.Medium, calls[0].Confidence)

	partial := resolveAll(t, `
class Api {
  constructor() {
    this.baseURL = "https://api.test/" + version;
  }
  list() {
    return this.http.get(this.baseURL);
  }
}
`)
	if !assert.Len(t, partial, 1) {
		return
	}
	assert.Equal(t, "https://api.test/{version}", partial[0].URL)
	assert.Equal(t, finding.Low, partial[0].Confidence, "a member chain holding a placeholder cannot rank above low")
}

func TestResolver_ConfigFallback(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "config.json"),
		[]byte(`{"apiUrl": "https://cfg.example.com/api"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	scanned, err := configs.NewScanner(nil, configs.DefaultScannerOptions()).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	calls := resolveWithConfig(t, `fetch(apiUrl);`, scanned)
	if !assert.Len(t, calls, 1) {
		return
	}
	assert.Equal(t, "https://cfg.example.com/api", calls[0].URL)
	assert.Equal(t, finding.SourceConfig, calls[0].Source)
	assert.Equal(t, finding.Medium, calls[0].Confidence)
}

func TestResolver_NeverEmpty(t *testing.T) {
	call := one(t, `fetch(buildUrlSomewhereElse());`)
	assert.NotEmpty(t, call.URL)
	assert.Equal(t, "{unresolved_call_for_fetch}", call.URL)
	assert.Equal(t, finding.Low, call.Confidence)
	assert.Equal(t, finding.SourceUnresolved, call.Source)
}

func TestResolver_BodyAndHeaders(t *testing.T) {
	call := one(t, `
fetch("/api/login", {
  method: "POST",
  headers: { "Content-Type": "application/json", "Authorization": "Bearer abc" },
  body: { user: "u", pass: "p" },
});
`)
	assert.Equal(t, "POST", call.Method)
	assert.Equal(t, finding.AuthAuthenticated, call.Authentication)
	assert.Equal(t, "Bearer abc", call.RequestHeaders["Authorization"])
	assert.Contains(t, call.RequestBody, "user:u")

	anonymous := one(t, `
fetch("/api/public", { headers: { "Accept": "application/json" } });
`)
	assert.Equal(t, finding.AuthAnonymous, anonymous.Authentication)

	unknown := one(t, `fetch("/api/misc");`)
	assert.Equal(t, finding.AuthUnknown, unknown.Authentication)
}

func TestResolver_OptionsObjectURL(t *testing.T) {
	call := one(t, `$.ajax({ url: "/api/search", type: "GET" });`)
	assert.Equal(t, "/api/search", call.URL)
	assert.Equal(t, finding.High, call.Confidence)
	assert.Equal(t, "GET", call.Method)
}

func TestVerbFromMethodName(t *testing.T) {
	cat, err := catalog.Load()
	assert.Nil(t, err)

	testCases := map[string]string{
		"getUsers":     "GET",
		"fetchOrders":  "GET",
		"createUser":   "POST",
		"updateOrder":  "PUT",
		"deleteThing":  "DELETE",
		"removeItem":   "DELETE",
		"patchProfile": "PATCH",
		"mystery":      "GET",
	}
	for name, verb := range testCases {
		assert.Equal(t, verb, VerbFromMethodName(cat, name), name)
	}
}
