// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the site's feeds, tags and boxes for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/boxes"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/site"
)

// ItemFormatURI is the resource describing the item file format.
const ItemFormatURI = "sitefeed://item-format"

// Server wraps the MCP server with site tools. Every tool call acts as a
// single configured viewer.
type Server struct {
	mcp    *server.MCPServer
	svc    *site.Service
	viewer access.Viewer
}

// New creates a new MCP server with all site tools registered.
func New(svc *site.Service, viewer access.Viewer) *Server {
	s := &Server{svc: svc, viewer: viewer}

	s.mcp = server.NewMCPServer(
		"Sitefeed",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_views",
		mcp.WithDescription("List the configured feed views and their defaults."),
	), s.listViews)

	s.mcp.AddTool(mcp.NewTool("list_feed",
		mcp.WithDescription("Render one batch of a feed view for a container. "+
			"Returns JSON with items, total, offset and batch_size."),
		mcp.WithString("view", mcp.Required(), mcp.Description("View name, see list_views (e.g. composite-view)")),
		mcp.WithString("container", mcp.Description("Absolute container path (default /)")),
		mcp.WithString("sort_by", mcp.Description("Sort key: title, pub_datetime, mtime or order")),
		mcp.WithString("search_type", mcp.Description("Comma-separated formats to keep (searchable views only)")),
		mcp.WithString("search_text", mcp.Description("Free-text filter (searchable views only)")),
		mcp.WithNumber("b_start", mcp.Description("Offset of the first item")),
		mcp.WithNumber("batch_size", mcp.Description("Items per batch")),
	), s.listFeed)

	s.mcp.AddTool(mcp.NewTool("search_types",
		mcp.WithDescription("List the item formats a feed view of a container can be filtered by."),
		mcp.WithString("view", mcp.Required(), mcp.Description("View name")),
		mcp.WithString("container", mcp.Description("Absolute container path (default /)")),
	), s.searchTypes)

	s.mcp.AddTool(mcp.NewTool("tag_cloud",
		mcp.WithDescription("Compute the weighted tag cloud. Bucket 1 marks the most used tags."),
		mcp.WithString("formats", mcp.Description("Comma-separated formats to count (default: configured)")),
	), s.tagCloud)

	s.mcp.AddTool(mcp.NewTool("tag_feed",
		mcp.WithDescription("List the items carrying a tag across the whole site."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag id")),
	), s.tagFeed)

	s.mcp.AddTool(mcp.NewTool("compose_boxes",
		mcp.WithDescription("Compose the side or content bar shown on a container."),
		mcp.WithString("container", mcp.Description("Absolute container path (default /)")),
		mcp.WithString("capability", mcp.Required(), mcp.Description("side or content")),
	), s.composeBoxes)

	s.mcp.AddTool(mcp.NewTool("get_order",
		mcp.WithDescription("Read an ordered set of a container with its etag."),
		mcp.WithString("container", mcp.Description("Absolute container path (default /)")),
		mcp.WithString("set", mcp.Required(), mcp.Description("children, sidebar or contentbar")),
	), s.getOrder)

	s.mcp.AddTool(mcp.NewTool("reorder",
		mcp.WithDescription("Apply one operation to an ordered set. Pass the etag from get_order as if_match "+
			"to fail instead of overwriting a concurrent change."),
		mcp.WithString("container", mcp.Description("Absolute container path (default /)")),
		mcp.WithString("set", mcp.Required(), mcp.Description("children, sidebar or contentbar")),
		mcp.WithString("op", mcp.Required(), mcp.Description("append, insert, move or remove")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item path, absolute or relative to the container")),
		mcp.WithString("before", mcp.Description("insert: place before this id")),
		mcp.WithString("after", mcp.Description("insert: place after this id")),
		mcp.WithNumber("index", mcp.Description("move: target position")),
		mcp.WithString("if_match", mcp.Description("Expected etag")),
	), s.reorder)

	s.mcp.AddTool(mcp.NewTool("create_item",
		mcp.WithDescription("Create a new item inside a container. "+
			"Content MUST follow the item format contract. Read it first via "+
			"the get_item_contract tool or the "+ItemFormatURI+" resource."),
		mcp.WithString("container", mcp.Required(), mcp.Description("Absolute container path")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Item name (no slashes, no .md extension)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content with YAML frontmatter")),
	), s.createItem)

	s.mcp.AddTool(mcp.NewTool("get_item_contract",
		mcp.WithDescription("Returns the item file format contract. "+
			"Call this before creating items to ensure correct structure."),
	), s.getItemContract)

	// Resource: item format contract.
	s.mcp.AddResource(
		mcp.NewResource(ItemFormatURI, "Item Format Contract",
			mcp.WithResourceDescription("Markdown and frontmatter format that all site items follow."),
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

func container(req mcp.CallToolRequest) string {
	if c := strings.TrimSpace(req.GetString("container", "")); c != "" {
		return c
	}
	return "/"
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult turns a service error into a tool error a model can act on.
func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		return mcp.NewToolResultError("forbidden: " + err.Error())
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("etag mismatch, read the order again: " + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listViews(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Views())
}

func (s *Server) listFeed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := req.RequireString("view")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	params := url.Values{}
	for _, key := range []string{feed.ParamSortBy, feed.ParamSearchType, feed.ParamSearchText} {
		if v := req.GetString(key, ""); v != "" {
			params.Set(key, v)
		}
	}
	for _, key := range []string{feed.ParamBStart, feed.ParamBatchSize} {
		if n := req.GetInt(key, 0); n > 0 {
			params.Set(key, strconv.Itoa(n))
		}
	}
	page, err := s.svc.Feed(ctx, view, container(req), s.viewer, params)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(page)
}

func (s *Server) searchTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := req.RequireString("view")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts, err := s.svc.SearchTypes(ctx, view, container(req), s.viewer)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(opts)
}

func (s *Server) tagCloud(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var formats []string
	if f := req.GetString("formats", ""); f != "" {
		for _, part := range strings.Split(f, ",") {
			if part = strings.TrimSpace(part); part != "" {
				formats = append(formats, part)
			}
		}
	}
	ws, err := s.svc.TagCloud(ctx, s.viewer, formats)
	if err != nil {
		return errorResult(err), nil
	}
	if len(ws) == 0 {
		return mcp.NewToolResultText("no tags found"), nil
	}
	return jsonResult(ws)
}

func (s *Server) tagFeed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.TagFeed(ctx, tag, s.viewer, nil)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(page)
}

func (s *Server) composeBoxes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("capability")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	capability, err := boxes.ParseCapability(raw)
	if err != nil {
		return errorResult(err), nil
	}
	bs, err := s.svc.Boxes(ctx, container(req), s.viewer, capability)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(bs)
}

func (s *Server) getOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	set, err := req.RequireString("set")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	o, err := s.svc.OrderIDs(ctx, container(req), set, s.viewer)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(o)
}

func (s *Server) reorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	set, err := req.RequireString("set")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op := site.Op{
		Kind:   site.OpKind(kind),
		ID:     id,
		Before: req.GetString("before", ""),
		After:  req.GetString("after", ""),
		Index:  req.GetInt("index", 0),
	}
	o, err := s.svc.Reorder(ctx, container(req), set, s.viewer, req.GetString("if_match", ""), op)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(o)
}

func (s *Server) createItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parent, err := req.RequireString("container")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	it, err := s.svc.CreateItem(ctx, parent, s.viewer, name, []byte(content))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("created: " + it.Path), nil
}

func (s *Server) getItemContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.contract()), nil
}

// contract is the static contract followed by the formats registered on
// this site.
func (s *Server) contract() string {
	types := s.svc.Types()
	var b strings.Builder
	b.WriteString(ItemFormatContract)
	b.WriteString("\n## Registered formats\n\n| format | title |\n|---|---|\n")
	for _, f := range types.Formats() {
		fmt.Fprintf(&b, "| %s | %s |\n", f, types.Title(f))
	}
	return b.String()
}

func (s *Server) readItemFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ItemFormatURI,
			MIMEType: "text/markdown",
			Text:     s.contract(),
		},
	}, nil
}
