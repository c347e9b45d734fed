package ast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// NamedChildren returns the named children of a node.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	children := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		children = append(children, n.NamedChild(i))
	}
	return children
}

// IsFunctionLike reports whether a node introduces a function scope.
// Grammar versions differ on the function-expression node name, so both
// spellings are accepted.
func IsFunctionLike(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "function_declaration", "function_expression", "function",
		"arrow_function", "method_definition", "generator_function",
		"generator_function_declaration":
		return true
	}
	return false
}

// IsStringNode reports whether a node is a plain string literal.
func IsStringNode(n *sitter.Node) bool {
	return n != nil && n.Type() == "string"
}

// Unquote strips matching string delimiters from literal text.
func Unquote(text string) string {
	return strings.Trim(text, "'\"`")
}

// StringContent returns the literal content of a string node without its
// quotes.
func (u *SourceUnit) StringContent(n *sitter.Node) string {
	return Unquote(u.Content(n))
}

// OperatorText extracts the operator token of a binary or unary
// expression, preferring the grammar field and falling back to the text
// between operands.
func (u *SourceUnit) OperatorText(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return u.Content(op)
	}
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left != nil && right != nil && left.EndByte() <= right.StartByte() {
		return strings.TrimSpace(string(u.Source[left.EndByte():right.StartByte()]))
	}
	return ""
}

// MemberChain flattens a member-access expression into its identifier
// segments, e.g. this.api.baseURL -> ["this","api","baseURL"]. Optional
// chaining and string-subscript access are flattened the same way. The
// second result is false when the expression contains a non-identifier
// segment (a call, a computed index, a literal receiver).
func (u *SourceUnit) MemberChain(n *sitter.Node) ([]string, bool) {
	var segments []string
	pure := true
	var descend func(node *sitter.Node)
	descend = func(node *sitter.Node) {
		if node == nil {
			pure = false
			return
		}
		switch node.Type() {
		case "member_expression":
			descend(node.ChildByFieldName("object"))
			if prop := node.ChildByFieldName("property"); prop != nil {
				segments = append(segments, u.Content(prop))
			} else {
				pure = false
			}
		case "subscript_expression":
			descend(node.ChildByFieldName("object"))
			index := node.ChildByFieldName("index")
			if IsStringNode(index) {
				segments = append(segments, u.StringContent(index))
			} else {
				pure = false
			}
		case "identifier", "this", "super":
			segments = append(segments, u.Content(node))
		case "parenthesized_expression":
			if node.NamedChildCount() == 1 {
				descend(node.NamedChild(0))
			} else {
				pure = false
			}
		case "non_null_expression":
			if node.NamedChildCount() >= 1 {
				descend(node.NamedChild(0))
			} else {
				pure = false
			}
		default:
			pure = false
		}
	}
	descend(n)
	if len(segments) == 0 {
		return nil, false
	}
	return segments, pure
}

// CallParts splits a call expression into its callee node, the receiver
// chain (empty for bare calls) and the argument nodes.
func (u *SourceUnit) CallParts(call *sitter.Node) (callee *sitter.Node, chain []string, args []*sitter.Node) {
	if call == nil || call.Type() != "call_expression" {
		return nil, nil, nil
	}
	callee = call.ChildByFieldName("function")
	if callee != nil {
		chain, _ = u.MemberChain(callee)
	}
	if argList := call.ChildByFieldName("arguments"); argList != nil {
		args = NamedChildren(argList)
	}
	return callee, chain, args
}

// EachCall invokes fn for every call_expression under root, depth first.
func EachCall(root *sitter.Node, fn func(call *sitter.Node)) {
	EachNode(root, func(n *sitter.Node) {
		if n.Type() == "call_expression" {
			fn(n)
		}
	})
}

// EachNode walks every named node under root, depth first.
func EachNode(root *sitter.Node, fn func(n *sitter.Node)) {
	if root == nil {
		return
	}
	fn(root)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		EachNode(root.NamedChild(i), fn)
	}
}

// EnclosingOfType returns the nearest ancestor (including n itself) whose
// type is one of the given kinds.
func EnclosingOfType(n *sitter.Node, kinds ...string) *sitter.Node {
	for node := n; node != nil; node = node.Parent() {
		for _, kind := range kinds {
			if node.Type() == kind {
				return node
			}
		}
	}
	return nil
}
