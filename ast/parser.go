// Package ast is the syntax-tree front end. It parses JavaScript and
// TypeScript sources into tree-sitter trees wrapped as SourceUnits, with a
// tolerant dialect fallback and a content-addressed parse cache.
package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
)

var (
	// ErrFileTooLarge is returned for inputs above Options.MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	// ErrInvalidContent is returned for content that is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")
	// ErrUnparsable is returned when neither grammar produces a usable tree.
	ErrUnparsable = errors.New("source could not be parsed")
)

// Options configures the parser.
type Options struct {
	// MaxFileSize is the maximum input size in bytes. Default: 10MB.
	MaxFileSize int
	// CacheSize is the number of parsed units kept in the LRU cache.
	// Zero disables caching. Default: 256.
	CacheSize int
	// MaxErrorRatio is the fraction of ERROR nodes above which the
	// JavaScript grammar result is discarded in favour of the TSX
	// grammar, which tolerates generics, decorators and annotations.
	MaxErrorRatio float64
}

// DefaultOptions returns the default parser options.
func DefaultOptions() Options {
	return Options{
		MaxFileSize:   10 * 1024 * 1024,
		CacheSize:     256,
		MaxErrorRatio: 0.05,
	}
}

// Option mutates parser Options.
type Option func(*Options)

// WithMaxFileSize overrides the maximum accepted file size.
func WithMaxFileSize(size int) Option {
	return func(o *Options) { o.MaxFileSize = size }
}

// WithCacheSize overrides the parse cache capacity.
func WithCacheSize(size int) Option {
	return func(o *Options) { o.CacheSize = size }
}

// Parser parses source files into SourceUnits. Safe for sequential reuse
// across files; each Parse call creates its own tree-sitter parser.
type Parser struct {
	opts  Options
	cache *lru.Cache[string, *SourceUnit]
}

// NewParser creates a parser with the given options.
func NewParser(opts ...Option) *Parser {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	p := &Parser{opts: options}
	if options.CacheSize > 0 {
		p.cache, _ = lru.New[string, *SourceUnit](options.CacheSize)
	}
	return p
}

// Parse parses content into a SourceUnit. TypeScript-flavoured files go
// straight to the TSX grammar; everything else tries JavaScript first and
// falls back to TSX when the tree is heavily errored.
func (p *Parser) Parse(ctx context.Context, content []byte, path string) (*SourceUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled: %w", err)
	}
	if len(content) > p.opts.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	if !utf8.Valid(content) {
		return nil, ErrInvalidContent
	}

	hash := contentHash(content)
	cacheKey := path + "@" + hash
	if p.cache != nil {
		if unit, ok := p.cache.Get(cacheKey); ok {
			return unit, nil
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	var tree *sitter.Tree
	var dialect string
	var err error

	if ext == ".ts" || ext == ".tsx" {
		tree, err = parseWith(ctx, tsx.GetLanguage(), content)
		dialect = DialectTypeScript
	} else {
		tree, err = parseWith(ctx, javascript.GetLanguage(), content)
		dialect = DialectJavaScript
		if err == nil && errorRatio(tree.RootNode()) > p.opts.MaxErrorRatio {
			if retry, rerr := parseWith(ctx, tsx.GetLanguage(), content); rerr == nil {
				if errorRatio(retry.RootNode()) < errorRatio(tree.RootNode()) {
					tree = retry
					dialect = DialectTypeScript
				}
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, ErrUnparsable
	}

	unit := &SourceUnit{
		Path:    path,
		Source:  content,
		Hash:    hash,
		Dialect: dialect,
		Tree:    tree,
		Root:    tree.RootNode(),
	}
	if p.cache != nil {
		p.cache.Add(cacheKey, unit)
	}
	return unit, nil
}

func parseWith(ctx context.Context, lang *sitter.Language, content []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	return parser.ParseCtx(ctx, nil, content)
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// errorRatio reports the fraction of named nodes that are ERROR nodes,
// sampling at most a few thousand nodes to stay cheap on generated input.
func errorRatio(root *sitter.Node) float64 {
	if root == nil {
		return 1
	}
	if !root.HasError() {
		return 0
	}
	const sampleLimit = 4096
	total, errored := 0, 0
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || total >= sampleLimit {
			return
		}
		total++
		if n.Type() == "ERROR" || n.IsMissing() {
			errored++
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	if total == 0 {
		return 1
	}
	return float64(errored) / float64(total)
}
