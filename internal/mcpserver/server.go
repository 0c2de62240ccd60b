// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Atlas catalog for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/atlas/internal/catalog"
	"github.com/starford/atlas/internal/configservice"
	"github.com/starford/atlas/internal/contentstore"
)

// Server wraps the MCP server with Atlas tools.
type Server struct {
	mcp     *server.MCPServer
	store   contentstore.Store
	cache   *catalog.Cache
	configs *configservice.Service
}

// New creates a new MCP server with all Atlas tools registered.
func New(store contentstore.Store, cache *catalog.Cache, configs *configservice.Service) *Server {
	s := &Server{store: store, cache: cache, configs: configs}

	s.mcp = server.NewMCPServer(
		"Atlas",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_catalog",
		mcp.WithDescription("Search the catalog of skills, MCP integrations, and tools by name, description, or tag."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("type", mcp.Description("Optional item type filter: skill, mcp, or tool")),
	), s.searchCatalog)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List catalog items, optionally filtered by type."),
		mcp.WithString("type", mcp.Description("Optional item type filter: skill, mcp, or tool")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("read_item",
		mcp.WithDescription("Read a catalog item's descriptor and documentation. "+
			"Item descriptors follow the canonical format; read it via the "+
			"get_item_format tool or the atlas://item-format resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Catalog item id")),
	), s.readItem)

	s.mcp.AddTool(mcp.NewTool("get_effective_configuration",
		mcp.WithDescription("Get the merged effective configuration for a user: "+
			"organization, team, and personal levels combined."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User id (UUID)")),
	), s.getEffectiveConfiguration)

	s.mcp.AddTool(mcp.NewTool("get_item_format",
		mcp.WithDescription("Returns the canonical Atlas item descriptor format. "+
			"Call this before authoring catalog items to ensure correct structure."),
	), s.getItemFormat)

	// Resource: item descriptor format contract.
	s.mcp.AddResource(
		mcp.NewResource("atlas://item-format", "Item Descriptor Format",
			mcp.WithResourceDescription("Canonical descriptor format that all catalog items must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readItemFormatResource,
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

// typeFilter parses the optional "type" argument.
func typeFilter(req mcp.CallToolRequest) (catalog.ItemType, error) {
	raw := ""
	if v, err := req.RequireString("type"); err == nil {
		raw = v
	}
	if raw == "" {
		return "", nil
	}
	t, ok := catalog.ParseType(raw)
	if !ok {
		return "", fmt.Errorf("unknown item type: %s", raw)
	}
	return t, nil
}

func (s *Server) searchCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	itemType, err := typeFilter(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	items, _, err := s.cache.List(ctx, nil, catalog.ListFilter{Type: itemType, Query: query, Limit: 20})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemType, err := typeFilter(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	items, _, err := s.cache.List(ctx, nil, catalog.ListFilter{Type: itemType, Limit: 100})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.cache.Get(ctx, id, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}

	doc := ""
	if item.ReadmePath != "" {
		doc, _ = s.store.Get(ctx, item.ReadmePath)
	}
	out, _ := json.MarshalIndent(catalog.Detail{Item: *item, Documentation: doc}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getEffectiveConfiguration(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid user_id: %s", raw)), nil
	}
	eff, err := s.configs.Effective(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(eff.Content), nil
}

func (s *Server) getItemFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ItemFormatContract), nil
}

func (s *Server) readItemFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "atlas://item-format",
			MIMEType: "text/markdown",
			Text:     ItemFormatContract,
		},
	}, nil
}
