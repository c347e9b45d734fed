// Package value defines the result domain of the static evaluator. Every
// expression reduces to exactly one Value variant; expressions that cannot
// be reduced become Placeholder values rather than errors.
package value

import (
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates Value variants.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindNull
	KindObject
	KindArray
	KindPlaceholder
)

// Value is the evaluation result variant. Implementations are immutable
// after construction.
type Value interface {
	Kind() Kind
}

// String holds a string value. Partial marks strings assembled from
// parts that were not all resolved, so rendered placeholders such as
// {id} inside Val do not pass for literal text.
type String struct {
	Val     string
	Partial bool
}

func (String) Kind() Kind { return KindString }

// Number holds a resolved numeric value.
type Number struct {
	Val float64
}

func (Number) Kind() Kind { return KindNumber }

// Bool holds a resolved boolean value.
type Bool struct {
	Val bool
}

func (Bool) Kind() Kind { return KindBool }

// Null represents both null and undefined literals.
type Null struct{}

func (Null) Kind() Kind { return KindNull }

// Object holds a resolved object literal. Order preserves source key order
// so rendering is deterministic.
type Object struct {
	Entries map[string]Value
	Order   []string
}

func (Object) Kind() Kind { return KindObject }

// Get returns the entry for key, or nil when absent.
func (o Object) Get(key string) Value {
	if o.Entries == nil {
		return nil
	}
	return o.Entries[key]
}

// Array holds a resolved array literal.
type Array struct {
	Items []Value
}

func (Array) Kind() Kind { return KindArray }

// Placeholder stands in for an expression that could not be reduced.
// Name carries the original identifier or a synthesized token.
type Placeholder struct {
	Name string
}

func (Placeholder) Kind() Kind { return KindPlaceholder }

// NewObject creates an empty Object value.
func NewObject() *Object {
	return &Object{Entries: map[string]Value{}}
}

// Set adds or replaces an entry, keeping first-seen key order.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.Entries[key]; !ok {
		o.Order = append(o.Order, key)
	}
	o.Entries[key] = v
}

// PlaceholderFor builds a placeholder for the given name, trimming any
// decoration that would leak expression syntax into rendered URLs.
func PlaceholderFor(name string) Placeholder {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "unknown"
	}
	return Placeholder{Name: name}
}

// Join renders parts into one string value, left to right. The result
// is marked partial when any part is itself unresolved.
func Join(parts ...Value) String {
	var builder strings.Builder
	partial := false
	for _, part := range parts {
		builder.WriteString(Text(part))
		if !IsResolved(part) {
			partial = true
		}
	}
	return String{Val: builder.String(), Partial: partial}
}

// FromAny converts a decoded JSON document into a Value.
func FromAny(v any) Value {
	switch typed := v.(type) {
	case string:
		return String{Val: typed}
	case float64:
		return Number{Val: typed}
	case bool:
		return Bool{Val: typed}
	case nil:
		return Null{}
	case map[string]any:
		object := NewObject()
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			object.Set(key, FromAny(typed[key]))
		}
		return object
	case []any:
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			items = append(items, FromAny(item))
		}
		return Array{Items: items}
	default:
		return PlaceholderFor("unknown")
	}
}

// Text renders a value for URL and body assembly. Placeholders render as
// {name} so partially resolved URLs keep their structure.
func Text(v Value) string {
	switch t := v.(type) {
	case String:
		return t.Val
	case Number:
		return strconv.FormatFloat(t.Val, 'f', -1, 64)
	case Bool:
		if t.Val {
			return "true"
		}
		return "false"
	case Null:
		return ""
	case Placeholder:
		return "{" + t.Name + "}"
	case Object, *Object:
		return renderObject(v)
	case Array:
		parts := make([]string, 0, len(t.Items))
		for _, item := range t.Items {
			parts = append(parts, Text(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return ""
}

func renderObject(v Value) string {
	var obj Object
	switch t := v.(type) {
	case Object:
		obj = t
	case *Object:
		obj = *t
	default:
		return ""
	}
	keys := obj.Order
	if len(keys) == 0 {
		for k := range obj.Entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+Text(obj.Entries[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// IsResolved reports whether a value contains no placeholder anywhere in
// its structure. Partial strings count as unresolved even though their
// placeholders are already rendered into the text.
func IsResolved(v Value) bool {
	switch t := v.(type) {
	case Placeholder:
		return false
	case String:
		return !t.Partial
	case Object:
		for _, entry := range t.Entries {
			if !IsResolved(entry) {
				return false
			}
		}
	case *Object:
		for _, entry := range t.Entries {
			if !IsResolved(entry) {
				return false
			}
		}
	case Array:
		for _, item := range t.Items {
			if !IsResolved(item) {
				return false
			}
		}
	case nil:
		return false
	}
	return true
}

// Truthy reports the boolean interpretation of a value and whether that
// interpretation is known. Placeholders are unknown.
func Truthy(v Value) (truthy bool, known bool) {
	switch t := v.(type) {
	case String:
		return t.Val != "", true
	case Number:
		return t.Val != 0, true
	case Bool:
		return t.Val, true
	case Null:
		return false, true
	case Object, *Object, Array:
		return true, true
	}
	return false, false
}

// Equal compares two scalar values. Composite or placeholder values never
// compare equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && !av.Partial && !bv.Partial && av.Val == bv.Val
	case Number:
		bv, ok := b.(Number)
		return ok && av.Val == bv.Val
	case Bool:
		bv, ok := b.(Bool)
		return ok && av.Val == bv.Val
	case Null:
		_, ok := b.(Null)
		return ok
	}
	return false
}

// AsObject normalizes an object value regardless of pointer-ness.
func AsObject(v Value) (Object, bool) {
	switch t := v.(type) {
	case Object:
		return t, true
	case *Object:
		return *t, true
	}
	return Object{}, false
}

// AsString returns the string content of a value when it resolved to a
// string, with ok reporting success.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	if !ok {
		return "", false
	}
	return s.Val, true
}

// AsNumber returns the numeric content of a value, coercing numeric
// strings the way template concatenation would.
func AsNumber(v Value) (float64, bool) {
	switch t := v.(type) {
	case Number:
		return t.Val, true
	case Bool:
		if t.Val {
			return 1, true
		}
		return 0, true
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(t.Val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
