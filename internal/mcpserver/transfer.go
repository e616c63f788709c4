package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/export"
	"github.com/randalmurphal/tpm/internal/legacy"
	"github.com/randalmurphal/tpm/internal/roadmap"
	"github.com/randalmurphal/tpm/internal/store"
)

func (s *Server) registerTransferTools() {
	s.add(mcp.NewTool("roadmap_view",
		mcp.WithDescription("Show progress rolled up from tasks to tickets, projects and organizations"),
		mcp.WithString("org_id", mcp.Description("Limit to one organization")),
		mcp.WithString("project_id", mcp.Description("Limit to one project")),
		enumString("format", "summary (markdown checklist, default) or json", []string{string(roadmap.FormatSummary), string(roadmap.FormatJSON)}),
		mcp.WithBoolean("active_only", mcp.Description("Hide done tickets in the summary")),
		mcp.WithNumber("max_open_tasks", mcp.Description("Open tasks listed per ticket in the summary")),
	), s.roadmapView)

	s.add(mcp.NewTool("export",
		mcp.WithDescription("Export everything as one document"),
		enumString("format", "json (default) or yaml", []string{string(export.FormatJSON), string(export.FormatYAML)}),
		mcp.WithString("path", mcp.Description("Write the document to this file instead of returning it")),
	), s.export)

	s.add(mcp.NewTool("import",
		mcp.WithDescription("Import an export document. Validates everything first; without force any problem aborts with nothing written."),
		mcp.WithString("document", mcp.Description("The document as JSON or YAML text")),
		mcp.WithString("path", mcp.Description("Read the document from this file")),
		mcp.WithBoolean("clear", mcp.Description("Delete all existing data first, in the same transaction")),
		mcp.WithBoolean("dry_run", mcp.Description("Validate only")),
		mcp.WithBoolean("force", mcp.Description("Skip bad records instead of aborting")),
	), s.importDocument)

	s.add(mcp.NewTool("migrate",
		mcp.WithDescription("Migrate legacy tracker data: a tracker directory or a JSON file"),
		mcp.WithString("path", mcp.Description("Legacy directory or file")),
		mcp.WithString("document", mcp.Description("A legacy JSON document")),
	), s.migrate)

	s.add(mcp.NewTool("info",
		mcp.WithDescription("Show database location, schema version and row counts"),
	), s.info)
}

func (s *Server) roadmapView(ctx context.Context, a args) (any, error) {
	format, err := roadmap.ParseFormat(a.str("format"))
	if err != nil {
		return nil, err
	}
	r, err := roadmap.Build(ctx, s.store, roadmap.Scope{OrgID: a.str("org_id"), ProjectID: a.str("project_id")})
	if err != nil {
		return nil, err
	}
	if format == roadmap.FormatJSON {
		return r, nil
	}
	var buf bytes.Buffer
	err = roadmap.RenderSummary(&buf, r, roadmap.SummaryOptions{
		ActiveOnly:   a.flag("active_only"),
		MaxOpenTasks: a.int("max_open_tasks", s.maxOpenTasks),
	})
	return buf.String(), err
}

// exportResult reports a document written to a file.
type exportResult struct {
	Path  string       `json:"path"`
	Stats store.Counts `json:"stats"`
}

func (s *Server) export(ctx context.Context, a args) (any, error) {
	format, err := export.ParseFormat(a.str("format"))
	if err != nil {
		return nil, err
	}
	doc, err := export.Export(ctx, s.store)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := export.Encode(&buf, doc, format); err != nil {
		return nil, err
	}
	path := a.str("path")
	if path == "" {
		return buf.String(), nil
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}
	return exportResult{Path: path, Stats: doc.Stats}, nil
}

// source reads the document argument, or the file named by path.
func source(a args, kind string) ([]byte, error) {
	if text := a.req.GetString("document", ""); text != "" {
		return []byte(text), nil
	}
	path := a.str("path")
	if path == "" {
		return nil, errors.Required(kind, "document or path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kind, err)
	}
	return data, nil
}

func (s *Server) importDocument(ctx context.Context, a args) (any, error) {
	data, err := source(a, "import")
	if err != nil {
		return nil, err
	}
	doc, err := export.Decode(data)
	if err != nil {
		return nil, err
	}
	return export.Import(ctx, s.store, doc, export.Options{
		Clear:  a.flag("clear"),
		DryRun: a.flag("dry_run"),
		Force:  a.flag("force"),
		Logger: s.logger,
	})
}

func (s *Server) migrate(ctx context.Context, a args) (any, error) {
	m := legacy.New(s.store, legacy.WithLogger(s.logger))
	if text := a.req.GetString("document", ""); text != "" {
		return m.MigrateDocument(ctx, []byte(text))
	}
	path := a.str("path")
	if path == "" {
		return nil, errors.Required("migrate", "document or path")
	}
	return m.Migrate(ctx, path)
}

func (s *Server) info(ctx context.Context, _ args) (any, error) {
	return s.store.Info(ctx)
}
