// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the query surface for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/laguz/internal/docservice"
	"github.com/starford/laguz/internal/indexer"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/store"
	"github.com/starford/laguz/internal/views"
)

// Server wraps the MCP server with Laguz tools.
type Server struct {
	mcp       *server.MCPServer
	docs      *docservice.Service
	rebuilder *indexer.Rebuilder
}

// New creates a new MCP server with all tools registered. rebuilder may be
// nil; the rebuild_index tool then reports unavailability.
func New(docs *docservice.Service, rebuilder *indexer.Rebuilder) *Server {
	s := &Server{docs: docs, rebuilder: rebuilder}

	s.mcp = server.NewMCPServer(
		"Laguz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through document titles, body text, tags, and searchable properties."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("type", mcp.Description("Optional type filter: note or folder")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List derived task rows with optional filters."),
		mcp.WithString("note", mcp.Description("Source note id")),
		mcp.WithString("project", mcp.Description("Project (parent folder) id")),
		mcp.WithString("status", mcp.Description("todo, doing, or done")),
		mcp.WithString("due_from", mcp.Description("Inclusive lower due-date bound (YYYY-MM-DD)")),
		mcp.WithString("due_to", mcp.Description("Inclusive upper due-date bound (YYYY-MM-DD)")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("query_view",
		mcp.WithDescription("Evaluate a saved-view specification (filters + sort) over the live collection. "+
			"Takes the view as a JSON object; see the laguz://document-format resource."),
		mcp.WithString("view", mcp.Required(), mcp.Description("Saved-view specification as a JSON object string")),
	), s.queryView)

	s.mcp.AddTool(mcp.NewTool("rebuild_index",
		mcp.WithDescription("Start a full task-index rebuild. No-op if one is already running."),
	), s.rebuildIndex)

	s.mcp.AddResource(
		mcp.NewResource("laguz://document-format", "Document Format Contract",
			mcp.WithResourceDescription("Canonical document structure, typed properties, and checklist task annotations."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var typeFilter models.DocType
	if v, err := req.RequireString("type"); err == nil {
		typeFilter = models.DocType(v)
	}
	results := s.docs.Search(ctx, query, typeFilter, 20)
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	optional := func(key string) string {
		v, err := req.RequireString(key)
		if err != nil {
			return ""
		}
		return v
	}
	rows, err := s.docs.Tasks(ctx, store.TaskFilter{
		NoteID:    optional("note"),
		ProjectID: optional("project"),
		Status:    models.Status(optional("status")),
		DueFrom:   optional("due_from"),
		DueTo:     optional("due_to"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) queryView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("view")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var v views.View
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return mcp.NewToolResultError("invalid view JSON: " + err.Error()), nil
	}
	docs, err := s.docs.QueryView(ctx, v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(docs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) rebuildIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.rebuilder == nil {
		return mcp.NewToolResultError("rebuild unavailable"), nil
	}
	started := s.rebuilder.Request(ctx)
	if !started {
		return mcp.NewToolResultText("rebuild already running"), nil
	}
	return mcp.NewToolResultText("rebuild started"), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "laguz://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
