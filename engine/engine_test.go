package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apirecon/apirecon/finding"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func callByURL(calls []*finding.APICall, url string) *finding.APICall {
	for _, call := range calls {
		if call.URL == url {
			return call
		}
	}
	return nil
}

func TestEngine_Run(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/app.js": `
export async function loadItems() {
    const response = await fetch("https://api.example.com/items?page=1");
    return response.json();
}`,
		"src/refresh.js": `
export function refreshItems() {
    return fetch("https://api.example.com/items?page=2");
}`,
		"src/orders.js": `
const base = "https://api.example.com";
export function loadOrders() {
    return axios.get(base + "/orders");
}`,
		"src/services/user.js": `
export class UserService {
    constructor(http) {
        this.http = http;
    }
    getUsers() {
        return this.http.get("/api/users");
    }
}`,
		"src/components/profile.js": `
import { UserService } from "../services/user";

class ProfileComponent {
    constructor() {
        this.userService = new UserService();
    }
    load() {
        this.userService.getUsers().subscribe(users => this.show(users));
    }
}`,
	})

	engine, err := New(WithLogger(discardLogger()), WithParallelism(2))
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Summary.FilesScanned)
	assert.Equal(t, 0, report.Summary.FilesFailed)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, root, report.Root)

	items := callByURL(report.Calls, "https://api.example.com/items")
	require.NotNil(t, items, "the two fetch sites should merge into one record")
	assert.Equal(t, "GET", items.Method)
	assert.Equal(t, finding.High, items.Confidence)
	assert.Len(t, items.Locations, 2)
	assert.Equal(t, "fetch", items.Library)

	orders := callByURL(report.Calls, "https://api.example.com/orders")
	require.NotNil(t, orders)
	assert.Equal(t, "GET", orders.Method)
	assert.Equal(t, finding.Medium, orders.Confidence)

	users := callByURL(report.Calls, "/api/users")
	require.NotNil(t, users, "the subscribe site should resolve through the service method")
	assert.Equal(t, "GET", users.Method)
	assert.Contains(t, users.Sources, finding.SourceServiceMethod)
	assert.Len(t, users.Locations, 2, "the definition site and the consumer site both count")
}

func TestEngine_Run_MinConfidence(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/app.js": `
export function load(path) {
    fetch("https://api.example.com/exact");
    fetch(path);
}`,
	})

	engine, err := New(WithLogger(discardLogger()), WithMinConfidence(finding.High))
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, report.Calls, 1)
	assert.Equal(t, "https://api.example.com/exact", report.Calls[0].URL)
	assert.Equal(t, 2, report.Summary.Candidates)
}

func TestEngine_Run_ParseFailureAccounting(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/good.js":   `fetch("/api/health");`,
		"src/broken.js": "fetch(\x80\x81\x82",
	})

	engine, err := New(WithLogger(discardLogger()))
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.FilesScanned)
	assert.Equal(t, 1, report.Summary.FilesFailed)
	require.Len(t, report.Calls, 1)
	assert.Equal(t, "/api/health", report.Calls[0].URL)
}

func TestEngine_Run_NoSources(t *testing.T) {
	engine, err := New(WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestEngine_Run_ConfigTable(t *testing.T) {
	root := writeTree(t, map[string]string{
		"config/settings.json": `{"api": {"baseUrl": "https://cfg.example.com"}}`,
		"src/client.js": `
import settings from "../config/settings.json";

export function ping() {
    return fetch(settings.api.baseUrl);
}`,
	})

	engine, err := New(WithLogger(discardLogger()))
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), root)
	require.NoError(t, err)

	call := callByURL(report.Calls, "https://cfg.example.com")
	require.NotNil(t, call, "the JSON config value should back the member chain")
	assert.Equal(t, "GET", call.Method)
}
