// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the labeling cursor as tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/labelservice"
	"github.com/starford/ocrlabel/internal/labeltext"
)

const labelFormatURI = "ocrlabel://label-format"

// Server wraps the MCP server with labeling tools.
type Server struct {
	mcp *server.MCPServer
	svc *labelservice.Service
}

// New creates a new MCP server with all labeling tools registered.
func New(svc *labelservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ocrlabel",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("cursor_status",
		mcp.WithDescription("Current cursor position, image count, labeled count and label settings."),
	), s.cursorStatus)

	s.mcp.AddTool(mcp.NewTool("next_image",
		mcp.WithDescription("Return the next image to label with its pre-filled label fields. "+
			"Call this before save_label."),
	), s.nextImage)

	s.mcp.AddTool(mcp.NewTool("skip_image",
		mcp.WithDescription("Advance the cursor without labeling the current image."),
	), s.skipImage)

	s.mcp.AddTool(mcp.NewTool("jump_to_index",
		mcp.WithDescription("Move the cursor to a 1-based image index."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Target index, starting from 1")),
	), s.jumpToIndex)

	s.mcp.AddTool(mcp.NewTool("save_label",
		mcp.WithDescription("Label the image returned by next_image and advance. "+
			"See get_label_format for the field layout."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("The index returned by next_image")),
		mcp.WithString("text_01", mcp.Required(), mcp.Description("Label text, or the first plate field")),
		mcp.WithString("text_02", mcp.Description("Second plate field")),
		mcp.WithString("text_03", mcp.Description("Third plate field")),
	), s.saveLabel)

	s.mcp.AddTool(mcp.NewTool("search_labels",
		mcp.WithDescription("Search saved labels by text or source filename; lists the newest labels when query is empty."),
		mcp.WithString("query", mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results")),
	), s.searchLabels)

	s.mcp.AddTool(mcp.NewTool("get_label_format",
		mcp.WithDescription("Returns how labeled copies are named and how plate fields combine."),
	), s.getLabelFormat)

	s.mcp.AddResource(
		mcp.NewResource(labelFormatURI, "Label Format",
			mcp.WithResourceDescription("Naming of labeled copies and the field layouts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLabelFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) cursorStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.svc.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p), nil
}

func (s *Server) nextImage(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := s.svc.Current(ctx)
	switch {
	case errors.Is(err, apperr.ErrNoMoreImages):
		return mcp.NewToolResultText("no more images"), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view), nil
}

func (s *Server) skipImage(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.Skip(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.cursorStatus(ctx, mcp.CallToolRequest{})
}

func (s *Server) jumpToIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["index"]
	if !ok {
		return mcp.NewToolResultError(`required argument "index" not found`), nil
	}
	if err := s.svc.Jump(ctx, fmt.Sprint(raw)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.cursorStatus(ctx, mcp.CallToolRequest{})
}

func (s *Server) saveLabel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text01, err := req.RequireString("text_01")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label, err := s.svc.Save(ctx, labelservice.SaveRequest{
		Index: index,
		Fields: labeltext.Fields{
			Text01: text01,
			Text02: req.GetString("text_02", ""),
			Text03: req.GetString("text_03", ""),
		},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(label), nil
}

func (s *Server) searchLabels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	limit := req.GetInt("limit", 20)
	labels, _, err := s.svc.Labels(ctx, query, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(labels) == 0 {
		return mcp.NewToolResultText("no labels found"), nil
	}
	return jsonResult(labels), nil
}

func (s *Server) getLabelFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LabelFormatContract), nil
}

func (s *Server) readLabelFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      labelFormatURI,
			MIMEType: "text/markdown",
			Text:     LabelFormatContract,
		},
	}, nil
}
