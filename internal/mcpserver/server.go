// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the working memory to LLM clients over stdio or HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/noosphere/internal/auth"
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/memory"
	"github.com/starford/noosphere/internal/models"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Server wraps the MCP server with the memory tools.
type Server struct {
	mcp         *server.MCPServer
	svc         *memory.Service
	defaultUser string
	logger      *slog.Logger
}

// New creates a new MCP server with all memory tools registered. Tool calls
// without an authenticated user in their context act as defaultUser.
func New(svc *memory.Service, defaultUser string, logger *slog.Logger) *Server {
	if defaultUser == "" {
		defaultUser = auth.DefaultUser
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, defaultUser: defaultUser, logger: logger}

	s.mcp = server.NewMCPServer(
		"Noosphere",
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithInstructions("Persistent working memory. Call browse with a project_id at the start of a session "+
			"and push when you finish significant work. Read "+ProtocolURI+" for the full protocol."),
	)

	s.mcp.AddTool(mcp.NewTool("browse",
		mcp.WithDescription("Without project_id: list your projects. With project_id: the project's state "+
			"document plus its most recent entries grouped into decisions, activity, open questions and other."),
		mcp.WithString("project_id", mcp.Description("Project to open (e.g. acme/api)")),
	), s.browse)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Keyword search over a project's entries. Any keyword may match; "+
			"results are ranked best first and capped at 20, each with a highlighted snippet."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project to search")),
		mcp.WithArray("query", mcp.Required(), mcp.WithStringItems(),
			mcp.Description("One or more keywords")),
	), s.search)

	s.mcp.AddTool(mcp.NewTool("read",
		mcp.WithDescription("Read a full entry with its metadata, or a single section of it."),
		mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry id returned by push, browse or search")),
		mcp.WithString("section", mcp.Description("Optional section heading to return on its own")),
	), s.read)

	s.mcp.AddTool(mcp.NewTool("push",
		mcp.WithDescription("Record work: an entry (title + sections), state deltas, or both. "+
			"Read "+ProtocolURI+" for the format. Nothing is written when any part is invalid."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project to write to; created on first push")),
		mcp.WithString("title", mcp.Description("Entry title; the entry is written only when sections are given too")),
		mcp.WithString("type", mcp.Enum(models.EntryTypeSession, models.EntryTypeFoundational),
			mcp.Description("Entry type (default session); use foundational for long-lived context")),
		mcp.WithString("source_tool", mcp.Description("Name of the tool writing the entry (default unknown)")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Entry tags")),
		mcp.WithObject("sections", mcp.Description("Entry body as heading -> markdown text; headings are written in alphabetical order")),
		mcp.WithArray("state_deltas",
			mcp.Description("Ordered state changes: {section, key, value} replaces a fact, {section, add} appends a list item"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"section": map[string]any{"type": "string"},
					"key":     map[string]any{"type": "string"},
					"value":   map[string]any{"type": "string"},
					"add":     map[string]any{"type": "string"},
				},
				"required": []string{"section"},
			}),
		),
	), s.push)

	s.mcp.AddResource(
		mcp.NewResource(ProtocolURI, "Memory Protocol",
			mcp.WithResourceDescription("How to read from and write to Noosphere working memory."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readProtocolResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout. Every call acts as the
// default user.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return auth.WithUser(ctx, s.defaultUser)
	}))
}

// HTTPHandler returns the streamable HTTP transport. The request context
// carries the user resolved by the HTTP auth middleware.
func (s *Server) HTTPHandler(endpointPath string) http.Handler {
	return server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(endpointPath),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if id, ok := auth.UserFrom(r.Context()); ok {
				return auth.WithUser(ctx, id)
			}
			return ctx
		}),
	)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) user(ctx context.Context) string {
	return auth.UserOr(ctx, s.defaultUser)
}

func (s *Server) fail(tool string, err error) *mcp.CallToolResult {
	s.logger.Error(tool+" failed", slog.String("error", err.Error()))
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) browse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	out, err := s.svc.Browse(ctx, s.user(ctx), projectID)
	if err != nil {
		return s.fail("browse", err), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	keywords, err := queryArg(req.GetArguments()["query"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchEntries(ctx, projectID, s.user(ctx), keywords)
	if err != nil {
		return s.fail("search", err), nil
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	out, _ := json.MarshalIndent(map[string]any{"results": results}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// queryArg accepts a list of keywords or a single whitespace-separated string.
func queryArg(v any) ([]string, error) {
	var out []string
	switch q := v.(type) {
	case []any:
		for _, item := range q {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("query: items must be strings")
			}
			if str = strings.TrimSpace(str); str != "" {
				out = append(out, str)
			}
		}
	case []string:
		for _, str := range q {
			if str = strings.TrimSpace(str); str != "" {
				out = append(out, str)
			}
		}
	case string:
		out = strings.Fields(q)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("query: at least one keyword is required")
	}
	return out, nil
}

func (s *Server) read(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entryID, err := req.RequireString("entry_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.Read(ctx, s.user(ctx), entryID, req.GetString("section", ""))
	if err != nil {
		return s.fail("read", err), nil
	}
	return mcp.NewToolResultText(out), nil
}

// pushArgs mirrors memory.PushRequest with sections as a plain object. Tool
// arguments arrive as a decoded map, so the client's heading order is
// already lost and markdown.FromMap fixes a deterministic one.
type pushArgs struct {
	ProjectID   string            `json:"project_id"`
	Title       string            `json:"title"`
	Type        string            `json:"type"`
	SourceTool  string            `json:"source_tool"`
	Tags        []string          `json:"tags"`
	Sections    map[string]string `json:"sections"`
	StateDeltas []models.Delta    `json:"state_deltas"`
}

func (s *Server) push(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var args pushArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	res, err := s.svc.Push(ctx, s.user(ctx), memory.PushRequest{
		ProjectID:   args.ProjectID,
		Title:       args.Title,
		Type:        args.Type,
		SourceTool:  args.SourceTool,
		Tags:        args.Tags,
		Sections:    markdown.FromMap(args.Sections),
		StateDeltas: args.StateDeltas,
	})
	if err != nil {
		return s.fail("push", err), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readProtocolResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ProtocolURI,
			MIMEType: "text/markdown",
			Text:     MemoryProtocol,
		},
	}, nil
}
