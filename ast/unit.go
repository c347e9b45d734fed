package ast

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Dialect names for SourceUnit.Dialect.
const (
	DialectJavaScript = "javascript"
	DialectTypeScript = "tsx"
)

// SourceUnit is a parsed file. It owns the syntax tree for one analysis
// run and is discarded afterwards.
type SourceUnit struct {
	Path    string
	Source  []byte
	Hash    string
	Dialect string
	Tree    *sitter.Tree
	Root    *sitter.Node
}

// Content returns the source text covered by a node.
func (u *SourceUnit) Content(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(u.Source)
}

// Location converts a node's start point to a 1-based file position.
func (u *SourceUnit) Location(n *sitter.Node) Location {
	if n == nil {
		return Location{File: u.Path}
	}
	point := n.StartPoint()
	return Location{
		File:   u.Path,
		Line:   int(point.Row) + 1,
		Column: int(point.Column) + 1,
	}
}

// Location is a 1-based position in a source file.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}
