package eval

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/classes"
	"github.com/apirecon/apirecon/configs"
	"github.com/apirecon/apirecon/scope"
	"github.com/apirecon/apirecon/value"
)

type fixture struct {
	unit      *ast.SourceUnit
	evaluator *Evaluator
}

func newFixture(t *testing.T, source string) *fixture {
	t.Helper()
	unit, err := ast.NewParser().Parse(context.Background(), []byte(source), "app.js")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tree := scope.Build(unit)
	store := classes.NewStore()
	store.Collect(unit)
	tracker := configs.NewTracker(store)
	tracker.Trace(unit, tree)
	return &fixture{
		unit:      unit,
		evaluator: New(unit, tree, store, nil, tracker),
	}
}

// lastExpr returns the initializer of the last declared variable.
func (f *fixture) lastExpr(t *testing.T) *sitter.Node {
	t.Helper()
	var found *sitter.Node
	ast.EachNode(f.unit.Root, func(n *sitter.Node) {
		if n.Type() == "variable_declarator" {
			if v := n.ChildByFieldName("value"); v != nil {
				found = v
			}
		}
	})
	if found == nil {
		t.Fatal("no declarator found")
	}
	return found
}

func evalLast(t *testing.T, source string) value.Value {
	f := newFixture(t, source)
	return f.evaluator.Evaluate(f.lastExpr(t))
}

func TestEvaluator_Literals(t *testing.T) {
	testCases := []struct {
		description string
		source      string
		expect      string
	}{
		{
			description: "string literal",
			source:      `const r = "/api/users";`,
			expect:      "/api/users",
		},
		{
			description: "template with resolved substitution",
			source: `const host = "api.example.com";
const r = ` + "`https://${host}/v1`" + `;`,
			expect: "https://api.example.com/v1",
		},
		{
			description: "concatenation",
			source: `const base = "/api";
const r = base + "/users" + "/" + 42;`,
			expect: "/api/users/42",
		},
		{
			description: "ternary with known condition",
			source: `const prod = true;
const r = prod ? "https://api.example.com" : "http://localhost:3000";`,
			expect: "https://api.example.com",
		},
		{
			description: "logical or fallback",
			source:      `const r = undefined || "/fallback";`,
			expect:      "/fallback",
		},
		{
			description: "nullish coalescing",
			source:      `const r = null ?? "/default";`,
			expect:      "/default",
		},
	}
	for _, testCase := range testCases {
		result := evalLast(t, testCase.source)
		assert.Equal(t, testCase.expect, value.Text(result), testCase.description)
	}
}

func TestEvaluator_UnresolvedBecomesPlaceholder(t *testing.T) {
	result := evalLast(t, `const r = ` + "`/api/users/${userId}`" + `;`)
	assert.Equal(t, "/api/users/{userId}", value.Text(result))
	assert.False(t, value.IsResolved(result))
}

func TestEvaluator_PartialStringsStayUnresolved(t *testing.T) {
	testCases := []struct {
		description string
		source      string
		expect      string
	}{
		{
			description: "concatenation with an unknown operand",
			source:      `const r = "/users/" + userId;`,
			expect:      "/users/{userId}",
		},
		{
			description: "template nested in concatenation",
			source:      `const r = "https://api.test" + ` + "`/users/${id}`" + `;`,
			expect:      "https://api.test/users/{id}",
		},
		{
			description: "string method on a partial receiver",
			source:      `const r = ("/USERS/" + id).toLowerCase();`,
			expect:      "/users/{id}",
		},
		{
			description: "partial string through a binding",
			source: `const path = ` + "`/users/${id}`" + `;
const r = path;`,
			expect: "/users/{id}",
		},
	}
	for _, testCase := range testCases {
		result := evalLast(t, testCase.source)
		assert.Equal(t, testCase.expect, value.Text(result), testCase.description)
		assert.False(t, value.IsResolved(result), testCase.description)
	}
}

func TestEvaluator_BindingChains(t *testing.T) {
	result := evalLast(t, `
const host = "api.example.com";
const base = "https://" + host;
const r = base + "/users";
`)
	assert.Equal(t, "https://api.example.com/users", value.Text(result))
}

func TestEvaluator_ShadowedBindingResolvesInOwnScope(t *testing.T) {
	f := newFixture(t, `
const path = "/outer";
function build() {
  const path = "/inner";
  const r = path;
  return r;
}
`)
	result := f.evaluator.Evaluate(f.lastExpr(t))
	assert.Equal(t, "/inner", value.Text(result))
}

func TestEvaluator_ObjectAndDestructuring(t *testing.T) {
	result := evalLast(t, `
const config = { api: { baseUrl: "https://api.example.com" }, retries: 3 };
const r = config.api.baseUrl;
`)
	assert.Equal(t, "https://api.example.com", value.Text(result))

	result = evalLast(t, `
const settings = { api: { baseURL: "/v2" } };
const { api: { baseURL } } = settings;
const r = baseURL;
`)
	assert.Equal(t, "/v2", value.Text(result))
}

func TestEvaluator_SpreadAndShorthand(t *testing.T) {
	result := evalLast(t, `
const defaults = { host: "localhost", port: 8080 };
const host = "api.example.com";
const r = { ...defaults, host };
`)
	object, ok := value.AsObject(result)
	if !assert.True(t, ok) {
		return
	}
	assert.Equal(t, "api.example.com", value.Text(object.Get("host")), "later spread keys are overridden")
	assert.Equal(t, "8080", value.Text(object.Get("port")))
}

func TestEvaluator_FunctionInlining(t *testing.T) {
	result := evalLast(t, `
function endpoint(resource) {
  return "/api/" + resource;
}
const r = endpoint("orders");
`)
	assert.Equal(t, "/api/orders", value.Text(result))

	result = evalLast(t, `
const buildUrl = (base, path = "/health") => base + path;
const r = buildUrl("https://api.example.com");
`)
	assert.Equal(t, "https://api.example.com/health", value.Text(result))
}

func TestEvaluator_RecursionIsBounded(t *testing.T) {
	result := evalLast(t, `
function loop(n) {
  return loop(n);
}
const r = loop(1);
`)
	assert.False(t, value.IsResolved(result), "self-recursion degrades to a placeholder")
}

func TestEvaluator_ConditionalReturn(t *testing.T) {
	result := evalLast(t, `
function pick(flag) {
  if (flag) {
    return "/when-true";
  }
  return "/when-false";
}
const r = pick(true);
`)
	assert.Equal(t, "/when-true", value.Text(result))
}

func TestEvaluator_ThisChain(t *testing.T) {
	f := newFixture(t, `
class ApiClient {
  constructor() {
    this.baseURL = "https://api.example.com";
  }
  users() {
    const r = this.baseURL + "/users";
    return r;
  }
}
`)
	result := f.evaluator.Evaluate(f.lastExpr(t))
	assert.Equal(t, "https://api.example.com/users", value.Text(result))
}

func TestEvaluator_ThisChainPrecedingWriteWins(t *testing.T) {
	f := newFixture(t, `
class Client {
  constructor() {
    this.url = "/from-ctor";
  }
  request() {
    this.url = "/local";
    const r = this.url;
    return r;
  }
}
`)
	result := f.evaluator.Evaluate(f.lastExpr(t))
	assert.Equal(t, "/local", value.Text(result))
}

func TestEvaluator_StringMethods(t *testing.T) {
	result := evalLast(t, `
const verb = "GET";
const r = verb.toLowerCase();
`)
	assert.Equal(t, "get", value.Text(result))

	result = evalLast(t, `
const r = "/api//users".replace("//", "/");
`)
	assert.Equal(t, "/api/users", value.Text(result))
}

func TestEvaluator_EnvOverlay(t *testing.T) {
	f := newFixture(t, `
function make(id) {
  const r = ` + "`/users/${id}`" + `;
  return r;
}
`)
	result := f.evaluator.EvaluateWithEnv(f.lastExpr(t), Env{"id": value.String{Val: "42"}})
	assert.Equal(t, "/users/42", value.Text(result))
}
