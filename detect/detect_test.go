package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/catalog"
)

func scan(t *testing.T, source string) []*Candidate {
	t.Helper()
	unit, err := ast.NewParser().Parse(context.Background(), []byte(source), "app.js")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewDetector(cat).Scan(unit)
}

func TestDetector_Scan(t *testing.T) {
	testCases := []struct {
		description string
		source      string
		callees     []string
		hints       []string
	}{
		{
			description: "native fetch",
			source:      `fetch("/api/users");`,
			callees:     []string{"fetch"},
			hints:       []string{""},
		},
		{
			description: "axios verb methods",
			source: `axios.get("/users");
axios.post("/users", body);`,
			callees: []string{"axios.get", "axios.post"},
			hints:   []string{"GET", "POST"},
		},
		{
			description: "verb method on this-held client",
			source:      `class S { load() { return this.http.delete("/users/1"); } }`,
			callees:     []string{"this.http.delete"},
			hints:       []string{"DELETE"},
		},
		{
			description: "created client instance",
			source:      `axios.create({ baseURL: "/api" }).get("/users");`,
			callees:     []string{""},
			hints:       []string{"GET"},
		},
		{
			description: "data hook",
			source:      `const { data } = useSWR("/api/profile");`,
			callees:     []string{"useSWR"},
			hints:       []string{""},
		},
		{
			description: "route registration",
			source:      `app.post("/api/orders", handler);`,
			callees:     []string{"app.post"},
			hints:       []string{"POST"},
		},
		{
			description: "xhr open",
			source:      `xhr.open("PUT", "/api/items/3");`,
			callees:     []string{"xhr.open"},
			hints:       []string{""},
		},
		{
			description: "nested call inside effect matches on its own",
			source:      `useEffect(() => { fetch("/api/session"); }, []);`,
			callees:     []string{"fetch"},
			hints:       []string{""},
		},
		{
			description: "unrelated calls ignored",
			source: `console.log("hi");
items.map(x => x.id);`,
			callees: nil,
			hints:   nil,
		},
	}
	for _, testCase := range testCases {
		candidates := scan(t, testCase.source)
		if !assert.Len(t, candidates, len(testCase.callees), testCase.description) {
			continue
		}
		for i, candidate := range candidates {
			if testCase.callees[i] != "" {
				assert.Equal(t, testCase.callees[i], candidate.Callee, testCase.description)
			}
			assert.Equal(t, testCase.hints[i], candidate.MethodHint, testCase.description)
			assert.NotNil(t, candidate.Category, testCase.description)
		}
	}
}

func TestDetector_SubscribeIdiom(t *testing.T) {
	candidates := scan(t, `
class Component {
  load() {
    this.userService.getUsers().subscribe(users => this.users = users);
  }
}
`)
	if !assert.Len(t, candidates, 1) {
		return
	}
	candidate := candidates[0]
	assert.True(t, candidate.Subscribe)
	assert.Equal(t, []string{"this", "userService", "getUsers"}, candidate.InnerChain)
	assert.NotNil(t, candidate.InnerCall)
}

func TestDetector_SubscribeThroughPipe(t *testing.T) {
	candidates := scan(t, `
class Component {
  load() {
    this.orderService.fetchOrders().pipe(first()).subscribe(orders => {});
  }
}
`)
	var subscribed *Candidate
	for _, candidate := range candidates {
		if candidate.Subscribe {
			subscribed = candidate
		}
	}
	if assert.NotNil(t, subscribed, "pipe between the call and subscribe is tolerated") {
		assert.Equal(t, []string{"this", "orderService", "fetchOrders"}, subscribed.InnerChain)
	}
}

func TestDetector_PlainSubscribeIsNotACandidate(t *testing.T) {
	candidates := scan(t, `emitter.subscribe(handler);`)
	assert.Empty(t, candidates, "subscribe without a this-rooted service call is ignored")
}
