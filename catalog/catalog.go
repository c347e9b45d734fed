// Package catalog holds the networking-idiom tables as external data:
// which callees and receiver-method pairs count as HTTP call sites, how
// method-name suffixes map to HTTP verbs, and the naming heuristics for
// service classes and configuration files.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed http_idioms.yaml
var embedded []byte

// CategoryKind classifies how an idiom surfaces in source.
type CategoryKind string

const (
	// KindFunction is a bare callable such as fetch(...).
	KindFunction CategoryKind = "function"
	// KindMethod is a receiver method such as axios.get(...).
	KindMethod CategoryKind = "method"
	// KindHook is a framework data hook such as useFetch(...).
	KindHook CategoryKind = "hook"
	// KindEffect is a lifecycle wrapper whose body may hold a call.
	KindEffect CategoryKind = "effect"
	// KindRoute is server-side route registration.
	KindRoute CategoryKind = "route"
	// KindSubscribe is a reactive subscription chain.
	KindSubscribe CategoryKind = "subscribe"
)

// Category is one group of related idioms.
type Category struct {
	Name          string       `yaml:"name"`
	Library       string       `yaml:"library"`
	Kind          CategoryKind `yaml:"kind"`
	Callees       []string     `yaml:"callees,omitempty"`
	Methods       []string     `yaml:"methods,omitempty"`
	ReceiverHints []string     `yaml:"receiverHints,omitempty"`
}

// ServiceNaming holds the heuristics recognizing service-style classes.
type ServiceNaming struct {
	Suffixes         []string `yaml:"suffixes"`
	MinifiedPrefixes []string `yaml:"minifiedPrefixes"`
}

// ConfigHeuristics mirrors the scanner's configuration-shape rules so
// they live in one table.
type ConfigHeuristics struct {
	FilenameKeywords []string `yaml:"filenameKeywords"`
	URLKeyKeywords   []string `yaml:"urlKeyKeywords"`
	SchemePrefixes   []string `yaml:"schemePrefixes"`
}

// Catalog is the full idiom table.
type Catalog struct {
	Version          int               `yaml:"version"`
	MethodSuffixes   map[string]string `yaml:"methodSuffixes"`
	Categories       []Category        `yaml:"categories"`
	ServiceNaming    ServiceNaming     `yaml:"serviceNaming"`
	ConfigHeuristics ConfigHeuristics  `yaml:"configHeuristics"`

	calleeIndex map[string]*Category
	methodIndex map[string][]*Category
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return parse(embedded)
}

// LoadFile parses a catalog from disk, replacing the embedded one.
func LoadFile(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return parse(content)
}

func parse(content []byte) (*Catalog, error) {
	catalog := &Catalog{}
	if err := yaml.Unmarshal(content, catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	catalog.index()
	return catalog, nil
}

func (c *Catalog) index() {
	c.calleeIndex = map[string]*Category{}
	c.methodIndex = map[string][]*Category{}
	for i := range c.Categories {
		category := &c.Categories[i]
		for _, callee := range category.Callees {
			c.calleeIndex[callee] = category
		}
		for _, method := range category.Methods {
			c.methodIndex[strings.ToLower(method)] = append(c.methodIndex[strings.ToLower(method)], category)
		}
	}
}

// ByCallee returns the category matching a bare callee name.
func (c *Catalog) ByCallee(name string) (*Category, bool) {
	category, ok := c.calleeIndex[name]
	return category, ok
}

// ByMethod returns the categories listing a method name.
func (c *Catalog) ByMethod(name string) []*Category {
	return c.methodIndex[strings.ToLower(name)]
}

// VerbForSuffix maps a method-name suffix to an HTTP verb.
func (c *Catalog) VerbForSuffix(name string) (string, bool) {
	verb, ok := c.MethodSuffixes[strings.ToLower(name)]
	return verb, ok
}

// ReceiverMatches reports whether a receiver segment looks like one of
// the category's typical receivers. An empty hint list matches anything.
func (cat *Category) ReceiverMatches(segment string) bool {
	if len(cat.ReceiverHints) == 0 {
		return true
	}
	lowered := strings.ToLower(segment)
	for _, hint := range cat.ReceiverHints {
		if strings.Contains(lowered, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}

// IsServiceName reports whether a class or receiver name looks like a
// service per the naming heuristics, tolerating minifier prefixes.
func (c *Catalog) IsServiceName(name string) bool {
	trimmed := name
	for _, prefix := range c.ServiceNaming.MinifiedPrefixes {
		trimmed = strings.TrimPrefix(trimmed, prefix)
	}
	for _, suffix := range c.ServiceNaming.Suffixes {
		if strings.HasSuffix(trimmed, suffix) {
			return true
		}
	}
	return false
}

// NormalizeServiceName strips minifier prefixes for index matching.
func (c *Catalog) NormalizeServiceName(name string) string {
	trimmed := name
	for _, prefix := range c.ServiceNaming.MinifiedPrefixes {
		trimmed = strings.TrimPrefix(trimmed, prefix)
	}
	return trimmed
}
