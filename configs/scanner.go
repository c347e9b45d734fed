// Package configs indexes configuration data from two directions: the
// scanner flattens configuration-shaped JSON files on disk into a lookup
// table, and the tracker follows configuration values loaded at runtime
// through bindings, aliases and class fields.
package configs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
)

// Entry is one flattened key from a scanned configuration file. Path is
// the dot-joined key path; BareKey is its final segment.
type Entry struct {
	Path          string `json:"path"`
	BareKey       string `json:"bareKey"`
	SourceFile    string `json:"sourceFile"`
	Value         string `json:"value"`
	IsURL         bool   `json:"isUrl"`
	IsAPIEndpoint bool   `json:"isApiEndpoint"`
}

// ScannerOptions tune which files count as configuration and which keys
// look endpoint-like.
type ScannerOptions struct {
	// FilenameKeywords mark a JSON file as configuration-shaped.
	FilenameKeywords []string
	// URLKeyKeywords mark a key as API-endpoint related.
	URLKeyKeywords []string
	// SchemePrefixes mark a value as a URL.
	SchemePrefixes []string
	// MaxFileSize bounds individual config files. Default: 1MB.
	MaxFileSize int
	// ExcludeDirs are directory names skipped during the walk.
	ExcludeDirs []string
}

// DefaultScannerOptions returns the default scanner heuristics.
func DefaultScannerOptions() ScannerOptions {
	return ScannerOptions{
		FilenameKeywords: []string{"config", "settings", "environment", "env"},
		URLKeyKeywords:   []string{"api", "endpoint", "host", "baseurl", "url", "server"},
		SchemePrefixes:   []string{"http://", "https://", "ws://", "wss://", "//"},
		MaxFileSize:      1024 * 1024,
		ExcludeDirs:      []string{"node_modules", "dist", "build", ".git", "coverage", "vendor"},
	}
}

// Scanner walks a project tree and indexes JSON configuration files.
type Scanner struct {
	fs   afs.Service
	opts ScannerOptions
}

// NewScanner creates a scanner over the given filesystem service.
func NewScanner(fs afs.Service, opts ScannerOptions) *Scanner {
	if fs == nil {
		fs = afs.New()
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultScannerOptions().MaxFileSize
	}
	return &Scanner{fs: fs, opts: opts}
}

// Scan walks root and builds the configuration table. When no file
// matches the filename heuristics, every JSON file under root is
// admitted instead.
func (s *Scanner) Scan(ctx context.Context, root string) (*Table, error) {
	type jsonFile struct {
		path    string
		matched bool
	}
	var candidates []jsonFile
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return !s.excluded(info.Name()), nil
		}
		if strings.ToLower(filepath.Ext(info.Name())) != ".json" {
			return true, nil
		}
		if info.Size() > int64(s.opts.MaxFileSize) {
			return true, nil
		}
		candidates = append(candidates, jsonFile{
			path:    url.Join(baseURL, parent, info.Name()),
			matched: s.configShaped(info.Name()),
		})
		return true, nil
	}
	if err := s.fs.Walk(ctx, root, visitor); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	table := NewTable()
	anyMatched := false
	for _, candidate := range candidates {
		if candidate.matched {
			anyMatched = true
			break
		}
	}
	for _, candidate := range candidates {
		if anyMatched && !candidate.matched {
			continue
		}
		if err := s.index(ctx, candidate.path, table); err != nil {
			// malformed files are skipped, not fatal
			continue
		}
	}
	return table, nil
}

func (s *Scanner) excluded(dir string) bool {
	for _, name := range s.opts.ExcludeDirs {
		if dir == name {
			return true
		}
	}
	return false
}

func (s *Scanner) configShaped(name string) bool {
	lowered := strings.ToLower(name)
	for _, keyword := range s.opts.FilenameKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func (s *Scanner) index(ctx context.Context, fileURL string, table *Table) error {
	content, err := s.fs.DownloadWithURL(ctx, fileURL)
	if err != nil {
		return err
	}
	var document any
	if err := json.Unmarshal(content, &document); err != nil {
		return fmt.Errorf("failed to parse %s: %w", fileURL, err)
	}
	base := filepath.Base(fileURL)
	table.documents[base] = document
	s.flatten(document, nil, fileURL, table)
	return nil
}

func (s *Scanner) flatten(node any, path []string, sourceFile string, table *Table) {
	switch typed := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			s.flatten(typed[key], append(path, key), sourceFile, table)
		}
	case []any:
		for i, item := range typed {
			s.flatten(item, append(path, strconv.Itoa(i)), sourceFile, table)
		}
	default:
		if len(path) == 0 {
			return
		}
		value := scalarText(typed)
		bare := path[len(path)-1]
		table.add(&Entry{
			Path:          strings.Join(path, "."),
			BareKey:       bare,
			SourceFile:    sourceFile,
			Value:         value,
			IsURL:         s.urlShaped(value),
			IsAPIEndpoint: s.endpointKey(bare) || s.urlShaped(value),
		})
	}
}

func (s *Scanner) urlShaped(value string) bool {
	for _, prefix := range s.opts.SchemePrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return strings.HasPrefix(value, "/") && len(value) > 1
}

func (s *Scanner) endpointKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, keyword := range s.opts.URLKeyKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func scalarText(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}

// Table is the flattened configuration index.
type Table struct {
	byPath    map[string]*Entry
	byBareKey map[string][]*Entry
	entries   []*Entry
	documents map[string]any
}

// NewTable creates an empty configuration table.
func NewTable() *Table {
	return &Table{
		byPath:    map[string]*Entry{},
		byBareKey: map[string][]*Entry{},
		documents: map[string]any{},
	}
}

func (t *Table) add(entry *Entry) {
	t.entries = append(t.entries, entry)
	if _, exists := t.byPath[entry.Path]; !exists {
		t.byPath[entry.Path] = entry
	}
	t.byBareKey[entry.BareKey] = append(t.byBareKey[entry.BareKey], entry)
}

// Entries returns every indexed entry.
func (t *Table) Entries() []*Entry {
	return t.entries
}

// Lookup finds an entry by its full dot-joined path.
func (t *Table) Lookup(path string) (*Entry, bool) {
	entry, ok := t.byPath[path]
	return entry, ok
}

// LookupKey finds entries by bare key, endpoint-flavoured entries first.
func (t *Table) LookupKey(key string) []*Entry {
	entries := t.byBareKey[key]
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsAPIEndpoint != sorted[j].IsAPIEndpoint {
			return sorted[i].IsAPIEndpoint
		}
		return sorted[i].IsURL && !sorted[j].IsURL
	})
	return sorted
}

// Document returns the parsed JSON document for a file base name, used
// to materialize JSON-imported modules as object values.
func (t *Table) Document(baseName string) (any, bool) {
	document, ok := t.documents[baseName]
	return document, ok
}
