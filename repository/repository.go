// Package repository discovers the analyzable source files under a
// project root and identifies the project itself from its marker files.
package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"golang.org/x/mod/modfile"
)

// File is one discovered source file with its content.
type File struct {
	Path    string
	Content []byte
}

// Project describes the scanned project root.
type Project struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	RootPath string `json:"rootPath"`
}

// Options configures discovery.
type Options struct {
	// Extensions is the allow-list of source file extensions.
	Extensions []string
	// ExcludeDirs are directory names never descended into.
	ExcludeDirs []string
	// MaxFileSize bounds individual files. Default: 10MB.
	MaxFileSize int64
}

// DefaultOptions returns the default discovery rules.
func DefaultOptions() Options {
	return Options{
		Extensions:  []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"},
		ExcludeDirs: []string{"node_modules", "dist", "build", ".git", "coverage", "vendor"},
		MaxFileSize: 10 * 1024 * 1024,
	}
}

// Discovery walks project trees for analyzable sources.
type Discovery struct {
	fs   afs.Service
	opts Options
}

// NewDiscovery creates a discovery over the given filesystem service.
func NewDiscovery(fs afs.Service, opts Options) *Discovery {
	if fs == nil {
		fs = afs.New()
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultOptions().MaxFileSize
	}
	return &Discovery{fs: fs, opts: opts}
}

// Files walks root and returns every admissible source file, sorted by
// path so downstream passes are deterministic.
func (d *Discovery) Files(ctx context.Context, root string) ([]*File, error) {
	var paths []string
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return !d.excluded(info.Name()), nil
		}
		if !d.admissible(info.Name()) || info.Size() > d.opts.MaxFileSize {
			return true, nil
		}
		paths = append(paths, url.Join(baseURL, parent, info.Name()))
		return true, nil
	}
	if err := d.fs.Walk(ctx, root, visitor); err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)

	files := make([]*File, 0, len(paths))
	for _, path := range paths {
		content, err := d.fs.DownloadWithURL(ctx, path)
		if err != nil {
			// unreadable files are skipped, the run continues
			continue
		}
		files = append(files, &File{Path: path, Content: content})
	}
	return files, nil
}

func (d *Discovery) excluded(dir string) bool {
	for _, name := range d.opts.ExcludeDirs {
		if dir == name {
			return true
		}
	}
	return false
}

func (d *Discovery) admissible(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range d.opts.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

var packageNameRegex = regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`)

// DetectProject identifies the project at root from its marker files.
func DetectProject(root string) *Project {
	project := &Project{
		Name:     filepath.Base(root),
		Type:     "unknown",
		RootPath: root,
	}
	if name := jsPackageName(filepath.Join(root, "package.json")); name != "" {
		project.Name = name
		project.Type = "javascript"
		return project
	}
	if name := goModuleName(filepath.Join(root, "go.mod")); name != "" {
		project.Name = name
		project.Type = "go"
		return project
	}
	return project
}

func jsPackageName(packageJSONPath string) string {
	data, err := os.ReadFile(packageJSONPath)
	if err != nil {
		return ""
	}
	matches := packageNameRegex.FindSubmatch(data)
	if len(matches) < 2 {
		return filepath.Base(filepath.Dir(packageJSONPath))
	}
	return string(matches[1])
}

func goModuleName(goModPath string) string {
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return ""
	}
	if mod, _ := modfile.Parse(goModPath, data, nil); mod != nil && mod.Module != nil {
		return mod.Module.Mod.Path
	}
	return filepath.Base(filepath.Dir(goModPath))
}
