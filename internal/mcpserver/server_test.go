package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tpm/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(store.NewTestStore(t), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// call invokes a tool and returns its text and error flag.
func call(t *testing.T, s *Server, name string, arguments map[string]any) (string, bool) {
	t.Helper()
	h, ok := s.handlers[name]
	require.True(t, ok, "tool %s not registered", name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

// callOK invokes a tool that must succeed and decodes its JSON result.
func callOK(t *testing.T, s *Server, name string, arguments map[string]any) map[string]any {
	t.Helper()
	text, isErr := call(t, s, name, arguments)
	require.False(t, isErr, text)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out), text)
	return out
}

func TestTools_Registered(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, name := range []string{
		"org_create", "org_list", "project_create", "project_list", "project_update",
		"ticket_create", "ticket_update", "ticket_list", "ticket_get", "ticket_search",
		"task_create", "task_update", "task_list", "task_get",
		"note_add", "note_list", "note_get", "dep_add", "dep_remove", "delete",
		"roadmap_view", "export", "import", "migrate", "info",
	} {
		assert.Contains(t, s.Tools(), name)
	}
}

func TestTools_Hierarchy(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	org := callOK(t, s, "org_create", map[string]any{"name": "acme"})
	proj := callOK(t, s, "project_create", map[string]any{"org_id": org["id"], "name": "api"})
	tick := callOK(t, s, "ticket_create", map[string]any{
		"project_id": proj["id"],
		"title":      "Login",
		"priority":   "high",
		"tags":       []any{"auth"},
		"metadata":   map[string]any{"estimate": 3},
	})
	assert.Equal(t, "backlog", tick["status"])
	assert.Equal(t, []any{"auth"}, tick["tags"])
	assert.Equal(t, map[string]any{"estimate": float64(3)}, tick["metadata"])

	first := callOK(t, s, "task_create", map[string]any{"ticket_id": tick["id"], "title": "Form"})
	second := callOK(t, s, "task_create", map[string]any{"ticket_id": tick["id"], "title": "Submit", "complexity": "simple"})
	callOK(t, s, "dep_add", map[string]any{"task_id": second["id"], "depends_on_id": first["id"]})

	got := callOK(t, s, "task_get", map[string]any{"task_id": second["id"]})
	assert.Equal(t, []any{first["id"]}, got["depends_on"])

	updated := callOK(t, s, "task_update", map[string]any{"task_id": first["id"], "status": "done"})
	assert.Equal(t, "done", updated["status"])
	assert.NotEmpty(t, updated["completed_at"])

	withTasks := callOK(t, s, "ticket_get", map[string]any{"ticket_id": tick["id"]})
	assert.Len(t, withTasks["tasks"], 2)

	updatedTick := callOK(t, s, "ticket_update", map[string]any{"ticket_id": tick["id"], "tags": []any{}, "status": "in-progress"})
	assert.Nil(t, updatedTick["tags"])
	assert.Equal(t, "Login", updatedTick["title"])
	assert.NotEmpty(t, updatedTick["started_at"])

	note := callOK(t, s, "note_add", map[string]any{"entity_type": "ticket", "entity_id": tick["id"], "content": "kickoff"})
	gotNote := callOK(t, s, "note_get", map[string]any{"note_id": note["id"]})
	assert.Equal(t, "kickoff", gotNote["content"])

	text, isErr := call(t, s, "note_list", map[string]any{"entity_type": "ticket", "entity_id": tick["id"]})
	require.False(t, isErr)
	assert.Contains(t, text, "kickoff")

	text, isErr = call(t, s, "ticket_search", map[string]any{"query": "log"})
	require.False(t, isErr)
	assert.Contains(t, text, tick["id"])

	removed := callOK(t, s, "dep_remove", map[string]any{"task_id": second["id"], "depends_on_id": first["id"]})
	assert.Equal(t, true, removed["changed"])

	deleted := callOK(t, s, "delete", map[string]any{"id": org["id"]})
	assert.Equal(t, true, deleted["deleted"])
	deleted = callOK(t, s, "delete", map[string]any{"id": org["id"]})
	assert.Equal(t, false, deleted["deleted"])

	info := callOK(t, s, "info", nil)
	assert.Equal(t, map[string]any{
		"orgs": float64(0), "projects": float64(0), "tickets": float64(0),
		"tasks": float64(0), "notes": float64(0), "task_dependencies": float64(0),
	}, info["counts"])
}

func TestTools_Errors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	text, isErr := call(t, s, "project_create", map[string]any{"org_id": "ORG-missing", "name": "api"})
	require.True(t, isErr)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, "NOT_FOUND", payload["code"])

	org := callOK(t, s, "org_create", map[string]any{"name": "acme"})
	proj := callOK(t, s, "project_create", map[string]any{"org_id": org["id"], "name": "api"})

	text, isErr = call(t, s, "ticket_create", map[string]any{"project_id": proj["id"], "title": "x", "priority": "urgent"})
	require.True(t, isErr)
	assert.Contains(t, text, `"VALIDATION"`)

	text, isErr = call(t, s, "ticket_create", map[string]any{"project_id": proj["id"], "title": "x", "metadata": "{bad"})
	require.True(t, isErr)
	assert.Contains(t, text, `"VALIDATION"`)

	text, isErr = call(t, s, "project_create", map[string]any{"org_id": org["id"], "name": "api"})
	require.True(t, isErr)
	assert.Contains(t, text, `"CONFLICT"`)

	_, isErr = call(t, s, "note_add", map[string]any{"entity_type": "widget", "entity_id": "x", "content": "c"})
	assert.True(t, isErr)

	_, isErr = call(t, s, "import", map[string]any{})
	assert.True(t, isErr)
}

func TestTools_RoadmapExportImport(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	org := callOK(t, s, "org_create", map[string]any{"name": "acme"})
	proj := callOK(t, s, "project_create", map[string]any{"org_id": org["id"], "name": "api"})
	tick := callOK(t, s, "ticket_create", map[string]any{"project_id": proj["id"], "title": "Login"})
	callOK(t, s, "task_create", map[string]any{"ticket_id": tick["id"], "title": "Form", "status": "done"})
	callOK(t, s, "task_create", map[string]any{"ticket_id": tick["id"], "title": "Submit"})

	summary, isErr := call(t, s, "roadmap_view", map[string]any{})
	require.False(t, isErr)
	assert.True(t, strings.HasPrefix(summary, "# Roadmap Summary\n"), summary)
	assert.Contains(t, summary, "Tasks: 1/2 (50%) done")

	tree := callOK(t, s, "roadmap_view", map[string]any{"format": "json", "project_id": proj["id"]})
	assert.Equal(t, float64(50), tree["task_completion"].(map[string]any)["percent"])

	doc, isErr := call(t, s, "export", map[string]any{})
	require.False(t, isErr)
	assert.Contains(t, doc, `"version": "1.0"`)

	dry := callOK(t, s, "import", map[string]any{"document": doc, "dry_run": true})
	assert.Equal(t, true, dry["dry_run"])
	assert.Equal(t, false, dry["applied"])

	// Importing over the same ids conflicts and writes nothing.
	text, isErr := call(t, s, "import", map[string]any{"document": doc})
	require.True(t, isErr)
	assert.Contains(t, text, `"CONFLICT"`)

	path := filepath.Join(t.TempDir(), "dump.yaml")
	written := callOK(t, s, "export", map[string]any{"format": "yaml", "path": path})
	assert.Equal(t, path, written["path"])
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `version: "1.0"`))

	replaced := callOK(t, s, "import", map[string]any{"path": path, "clear": true})
	assert.Equal(t, true, replaced["cleared"])
	assert.Equal(t, float64(2), replaced["created"].(map[string]any)["tasks"])
}

func TestTools_Migrate(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	stats := callOK(t, s, "migrate", map[string]any{"document": `{
		"orgs": [{"id": "o1", "name": "acme", "projects": [{"id": "p1", "name": "api",
			"features": [{"id": "f1", "title": "Login", "status": "completed"}]}]}]
	}`})
	created := stats["created"].(map[string]any)
	assert.Equal(t, float64(1), created["orgs"])
	assert.Equal(t, float64(1), created["projects"])
	assert.Equal(t, float64(1), created["tickets"])

	text, isErr := call(t, s, "ticket_list", map[string]any{"status": "done"})
	require.False(t, isErr)
	assert.Contains(t, text, "Login")
}
