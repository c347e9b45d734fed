package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func write(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscovery_Files(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/app.js", `fetch("/a");`)
	write(t, root, "src/view.tsx", `export const V = 1;`)
	write(t, root, "src/util.mjs", `export default 1;`)
	write(t, root, "readme.md", `# nope`)
	write(t, root, "styles.css", `body {}`)
	write(t, root, "node_modules/lib/index.js", `ignored`)
	write(t, root, "dist/bundle.js", `ignored`)

	discovery := NewDiscovery(nil, DefaultOptions())
	files, err := discovery.Files(context.Background(), root)
	if !assert.Nil(t, err) {
		return
	}
	if !assert.Len(t, files, 3) {
		return
	}
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, filepath.Base(file.Path))
		assert.NotEmpty(t, file.Content)
	}
	assert.Equal(t, []string{"app.js", "util.mjs", "view.tsx"}, names, "sorted by path")
}

func TestDetectProject(t *testing.T) {
	root := t.TempDir()
	write(t, root, "package.json", `{"name": "storefront-web", "version": "1.0.0"}`)

	project := DetectProject(root)
	assert.Equal(t, "storefront-web", project.Name)
	assert.Equal(t, "javascript", project.Type)

	bare := t.TempDir()
	unknown := DetectProject(bare)
	assert.Equal(t, "unknown", unknown.Type)
	assert.Equal(t, filepath.Base(bare), unknown.Name)
}
