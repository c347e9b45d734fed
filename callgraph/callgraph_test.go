package callgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/catalog"
	"github.com/apirecon/apirecon/classes"
	"github.com/apirecon/apirecon/configs"
	"github.com/apirecon/apirecon/detect"
	"github.com/apirecon/apirecon/eval"
	"github.com/apirecon/apirecon/finding"
	"github.com/apirecon/apirecon/resolve"
	"github.com/apirecon/apirecon/scope"
)

type program struct {
	index      *Index
	detector   *detect.Detector
	units      []*ast.SourceUnit
	evaluators map[*ast.SourceUnit]*eval.Evaluator
}

// buildProgram runs the collect pass over every source, then indexes
// service classes, mirroring the engine's barrier between passes.
func buildProgram(t *testing.T, sources map[string]string) *program {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatal(err)
	}
	parser := ast.NewParser()
	store := classes.NewStore()
	tracker := configs.NewTracker(store)
	detector := detect.NewDetector(cat)

	var units []*ast.SourceUnit
	trees := map[*ast.SourceUnit]*scope.Tree{}
	for path, source := range sources {
		unit, err := parser.Parse(context.Background(), []byte(source), path)
		if err != nil {
			t.Fatalf("parse %v: %v", path, err)
		}
		units = append(units, unit)
		trees[unit] = scope.Build(unit)
		store.Collect(unit)
	}
	for _, unit := range units {
		tracker.Trace(unit, trees[unit])
	}

	index := NewIndex(cat)
	evaluators := map[*ast.SourceUnit]*eval.Evaluator{}
	for _, unit := range units {
		evaluator := eval.New(unit, trees[unit], store, nil, tracker)
		evaluators[unit] = evaluator
		index.AddUnit(unit, trees[unit], store, detector, resolve.NewResolver(cat, evaluator))
	}
	return &program{index: index, detector: detector, units: units, evaluators: evaluators}
}

func (p *program) resolveSubscribes(t *testing.T) []*finding.ResolvedCall {
	t.Helper()
	var calls []*finding.ResolvedCall
	for _, unit := range p.units {
		for _, candidate := range p.detector.Scan(unit) {
			if !candidate.Subscribe {
				continue
			}
			if call, ok := p.index.Resolve(candidate, p.evaluators[unit]); ok {
				calls = append(calls, call)
			}
		}
	}
	return calls
}

func TestIndex_ServiceMethodIndirection(t *testing.T) {
	p := buildProgram(t, map[string]string{
		"user.service.js": `
class UserService {
  getUsers() {
    return this.http.get("/api/users");
  }
}
`,
		"component.js": `
class UserList {
  load() {
    this.userService.getUsers().subscribe(users => this.users = users);
  }
}
`,
	})
	calls := p.resolveSubscribes(t)
	if !assert.Len(t, calls, 1) {
		return
	}
	call := calls[0]
	assert.Equal(t, "GET", call.Method)
	assert.Equal(t, "/api/users", call.URL)
	assert.Equal(t, finding.SourceServiceMethod, call.Source)
	assert.Equal(t, "component.js", call.Location.File, "the finding points at the consumer call site")
}

func TestIndex_ParameterizedServiceCall(t *testing.T) {
	p := buildProgram(t, map[string]string{
		"order.service.js": `
class OrderService {
  getOrder(orderId) {
    return this.http.get(` + "`/api/orders/${orderId}`" + `);
  }
}
`,
		"view.js": `
class OrderView {
  show() {
    this.orderService.getOrder("42").subscribe(order => {});
  }
}
`,
	})
	calls := p.resolveSubscribes(t)
	if !assert.Len(t, calls, 1) {
		return
	}
	assert.Equal(t, "/api/orders/42", calls[0].URL, "caller arguments flow into the service URL")
}

func TestIndex_MinifiedAlias(t *testing.T) {
	p := buildProgram(t, map[string]string{
		"bundle.js": `
class _AccountService {
  deleteAccount(id) {
    return this.http.delete("/api/accounts/" + id);
  }
}
const AccountService = _AccountService;

class Page {
  wipe() {
    this.accountService.deleteAccount(7).subscribe(() => {});
  }
}
`,
	})
	calls := p.resolveSubscribes(t)
	if !assert.Len(t, calls, 1) {
		return
	}
	assert.Equal(t, "DELETE", calls[0].Method)
	assert.Equal(t, "/api/accounts/7", calls[0].URL)
}

func TestIndex_BodyEnrichment(t *testing.T) {
	p := buildProgram(t, map[string]string{
		"user.service.js": `
class UserService {
  createUser(user) {
    return this.http.post("/api/users", user);
  }
}
`,
		"form.js": `
class SignupForm {
  submit() {
    this.userService.createUser({ name: "Ada", role: "admin" }).subscribe(() => {});
  }
}
`,
	})
	calls := p.resolveSubscribes(t)
	if !assert.Len(t, calls, 1) {
		return
	}
	assert.Equal(t, "POST", calls[0].Method)
	assert.Contains(t, calls[0].RequestBody, "name:Ada", "the caller's literal body enriches the finding")
}

func TestIndex_MissingTargetFallsThrough(t *testing.T) {
	p := buildProgram(t, map[string]string{
		"component.js": `
class Widget {
  load() {
    this.ghostService.vanish().subscribe(() => {});
  }
}
`,
	})
	calls := p.resolveSubscribes(t)
	assert.Empty(t, calls, "no matching class leaves the candidate to the generic resolver")
}
