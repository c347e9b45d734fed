package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	cat, err := Load()
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, 1, cat.Version)
	assert.NotEmpty(t, cat.Categories)

	fetch, ok := cat.ByCallee("fetch")
	assert.True(t, ok)
	assert.Equal(t, KindFunction, fetch.Kind)

	hooks, ok := cat.ByCallee("useSWR")
	assert.True(t, ok)
	assert.Equal(t, KindHook, hooks.Kind)

	matches := cat.ByMethod("post")
	assert.NotEmpty(t, matches)

	subscribers := cat.ByMethod("subscribe")
	if assert.Len(t, subscribers, 1) {
		assert.Equal(t, KindSubscribe, subscribers[0].Kind)
		assert.True(t, subscribers[0].ReceiverMatches("anything"), "no hints matches all receivers")
	}
}

func TestCatalog_VerbForSuffix(t *testing.T) {
	cat, err := Load()
	assert.Nil(t, err)

	testCases := []struct {
		suffix string
		verb   string
		found  bool
	}{
		{suffix: "get", verb: "GET", found: true},
		{suffix: "POST", verb: "POST", found: true},
		{suffix: "del", verb: "DELETE", found: true},
		{suffix: "getJSON", verb: "GET", found: true},
		{suffix: "subscribe", found: false},
	}
	for _, testCase := range testCases {
		verb, ok := cat.VerbForSuffix(testCase.suffix)
		assert.Equal(t, testCase.found, ok, testCase.suffix)
		if testCase.found {
			assert.Equal(t, testCase.verb, verb, testCase.suffix)
		}
	}
}

func TestCatalog_ServiceNaming(t *testing.T) {
	cat, err := Load()
	assert.Nil(t, err)

	assert.True(t, cat.IsServiceName("UserService"))
	assert.True(t, cat.IsServiceName("_OrderRepository"), "minifier prefix is tolerated")
	assert.True(t, cat.IsServiceName("PaymentClient"))
	assert.False(t, cat.IsServiceName("helperFunction"))
	assert.Equal(t, "UserService", cat.NormalizeServiceName("_UserService"))
}
