// Package mcpserver exposes the tracker as MCP tools over stdio.
//
// Each tool maps onto one store, roadmap, export or legacy operation.
// Domain errors come back as tool errors carrying the structured error
// JSON, so clients can branch on the code.
package mcpserver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/roadmap"
	"github.com/randalmurphal/tpm/internal/store"
)

// Name is the server name announced to clients.
const Name = "tpm"

// Server serves the tracker's tools.
type Server struct {
	store        *store.Store
	logger       *slog.Logger
	version      string
	maxOpenTasks int

	mcp      *server.MCPServer
	handlers map[string]server.ToolHandlerFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for tool failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMaxOpenTasks sets the roadmap summary's default open-task cap.
func WithMaxOpenTasks(n int) Option {
	return func(s *Server) { s.maxOpenTasks = n }
}

// New creates a server over st with every tool registered.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{
		store:        st,
		logger:       slog.Default(),
		version:      "dev",
		maxOpenTasks: roadmap.DefaultMaxOpenTasks,
		handlers:     make(map[string]server.ToolHandlerFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		Name,
		s.version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.registerEntityTools()
	s.registerTransferTools()
	return s
}

const instructions = `tpm tracks work as orgs > projects > tickets > tasks, with notes on any of them and dependencies between tasks.
Create parents before children and pass the returned ids. Use roadmap_view for progress and ticket_get for a ticket with its tasks.`

// MCP returns the underlying MCP server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Tools lists the registered tool names, sorted.
func (s *Server) Tools() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeStdio serves JSON-RPC on in and out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening", "tools", len(s.handlers))
	return stdio.Listen(ctx, in, out)
}

// handler is a tool body: it returns a value to send as JSON, a string to
// send verbatim, or an error.
type handler func(ctx context.Context, a args) (any, error)

func (s *Server) add(tool mcp.Tool, h handler) {
	wrapped := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		v, err := h(ctx, args{req: req})
		if err != nil {
			s.logger.Debug("tool failed", "tool", tool.Name, "error", err)
			return toolError(err), nil
		}
		return toolResult(v)
	}
	s.handlers[tool.Name] = wrapped
	s.mcp.AddTool(tool, wrapped)
}

func toolResult(v any) (*mcp.CallToolResult, error) {
	if text, ok := v.(string); ok {
		return mcp.NewToolResultText(text), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError renders err as JSON when it is one of ours, else as text.
func toolError(err error) *mcp.CallToolResult {
	var payload any
	var partial *errors.PartialFailure
	if te := errors.AsTrackerError(err); te != nil {
		payload = te
	} else if stderrors.As(err, &partial) {
		payload = partial
	} else {
		return mcp.NewToolResultError(err.Error())
	}
	data, mErr := json.Marshal(payload)
	if mErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}

// args reads tool arguments.
type args struct {
	req mcp.CallToolRequest
}

func (a args) has(key string) bool {
	_, ok := a.req.GetArguments()[key]
	return ok
}

func (a args) str(key string) string {
	return strings.TrimSpace(a.req.GetString(key, ""))
}

// required returns a non-blank string argument or a validation error.
func (a args) required(kind, key string) (string, error) {
	s := a.str(key)
	if s == "" {
		return "", errors.Required(kind, key)
	}
	return s, nil
}

func (a args) strPtr(key string) *string {
	if !a.has(key) {
		return nil
	}
	s := a.req.GetString(key, "")
	return &s
}

func (a args) flag(key string) bool {
	return a.req.GetBool(key, false)
}

func (a args) int(key string, def int) int {
	return a.req.GetInt(key, def)
}

func (a args) list(key string) []string {
	return a.req.GetStringSlice(key, nil)
}

func (a args) listPtr(key string) *[]string {
	if !a.has(key) {
		return nil
	}
	xs := a.list(key)
	if xs == nil {
		xs = []string{}
	}
	return &xs
}

// metadata accepts a JSON object or a JSON-encoded string.
func (a args) metadata(kind string) (model.Metadata, error) {
	v, ok := a.req.GetArguments()["metadata"]
	if !ok || v == nil {
		return nil, nil
	}
	if s, isString := v.(string); isString {
		m, err := model.ParseMetadata(s)
		if err != nil {
			return nil, errors.Invalid(kind, "metadata", "not valid JSON").WithCause(err)
		}
		return m, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Invalid(kind, "metadata", "not encodable as JSON").WithCause(err)
	}
	return model.ParseMetadata(string(data))
}

func (a args) metadataPtr(kind string) (*model.Metadata, error) {
	if !a.has("metadata") {
		return nil, nil
	}
	m, err := a.metadata(kind)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// stringArray declares an array-of-strings parameter.
func stringArray(name, desc string) mcp.ToolOption {
	return mcp.WithArray(name, mcp.Description(desc), mcp.Items(map[string]any{"type": "string"}))
}

func enumString(name, desc string, values []string, opts ...mcp.PropertyOption) mcp.ToolOption {
	return mcp.WithString(name, append([]mcp.PropertyOption{mcp.Description(desc), mcp.Enum(values...)}, opts...)...)
}
