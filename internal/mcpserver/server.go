// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Luzzle piece engines for LLM integration via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/piece"
	"github.com/starford/luzzle/internal/pieces"
)

const contractURI = "luzzle://piece-format"

// Server wraps the MCP server with Luzzle tools.
type Server struct {
	mcp      *server.MCPServer
	registry *pieces.Registry
	db       index.Store
	logger   *slog.Logger
}

// New creates a new MCP server with all Luzzle tools registered.
func New(registry *pieces.Registry, db index.Store, logger *slog.Logger) *Server {
	s := &Server{registry: registry, db: db, logger: logger}

	s.mcp = server.NewMCPServer(
		"Luzzle",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_types",
		mcp.WithDescription("List the registered piece types."),
	), s.listTypes)

	s.mcp.AddTool(mcp.NewTool("get_schema",
		mcp.WithDescription("Return the fields of a piece type: kind, format, enum, whether it is required."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Piece type, e.g. books")),
	), s.getSchema)

	s.mcp.AddTool(mcp.NewTool("read_piece",
		mcp.WithDescription("Read the frontmatter and note of a piece file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Root-relative path, e.g. shelf/dune.books.md")),
	), s.readPiece)

	s.mcp.AddTool(mcp.NewTool("create_piece",
		mcp.WithDescription("Create a new piece from a title. Optional values are applied as with set_fields. "+
			"Read the contract first via get_piece_contract or the "+contractURI+" resource."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Piece type")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title; the file name is derived from it")),
		mcp.WithString("dir", mcp.Description("Optional root-relative directory")),
		mcp.WithObject("values", mcp.Description("Optional field values keyed by field name")),
	), s.createPiece)

	s.mcp.AddTool(mcp.NewTool("set_fields",
		mcp.WithDescription("Set frontmatter fields of a piece. Array fields append. "+
			"Attachment fields take an http(s) URL or a base64 data URI."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Root-relative piece path")),
		mcp.WithObject("values", mcp.Required(), mcp.Description("Field values keyed by field name")),
	), s.setFields)

	s.mcp.AddTool(mcp.NewTool("remove_field",
		mcp.WithDescription("Remove a frontmatter field, or only the matching element of an array field."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Root-relative piece path")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field name")),
		mcp.WithString("value", mcp.Description("Optional value to remove instead of the whole field")),
	), s.removeField)

	s.mcp.AddTool(mcp.NewTool("search_pieces",
		mcp.WithDescription("Full-text search through piece titles and notes."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPieces)

	s.mcp.AddTool(mcp.NewTool("get_piece_contract",
		mcp.WithDescription("Returns the Luzzle piece format contract. "+
			"Call this before creating or editing pieces."),
	), s.getPieceContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Piece Format Contract",
			mcp.WithResourceDescription("How piece files and frontmatter values are stored."),
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError renders engine errors for the model; validation failures list
// every offending field.
func toolError(err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		msg := "validation failed:"
		for _, m := range verr.Messages() {
			msg += "\n- " + m
		}
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listTypes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	types, err := s.registry.GetTypes()
	if err != nil {
		return toolError(err), nil
	}
	if types == nil {
		types = []string{}
	}
	return jsonResult(types)
}

func (s *Server) getSchema(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pieceType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sch, err := s.registry.Schema(pieceType)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sch)
}

func (s *Server) readPiece(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, doc, err := s.load(req)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(doc)
}

func (s *Server) createPiece(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pieceType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir := req.GetString("dir", "")

	p, err := s.registry.GetPiece(pieceType)
	if err != nil {
		return toolError(err), nil
	}
	doc, err := p.Create(dir, title)
	if err != nil {
		return toolError(err), nil
	}
	if values, ok := req.GetArguments()["values"].(map[string]any); ok && len(values) > 0 {
		if doc, err = p.SetFields(ctx, doc, values); err != nil {
			return toolError(err), nil
		}
	}
	return s.save(ctx, p, doc)
}

func (s *Server) setFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	values, ok := req.GetArguments()["values"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError(`required argument "values" must be an object`), nil
	}
	p, doc, err := s.load(req)
	if err != nil {
		return toolError(err), nil
	}
	doc, err = p.SetFields(ctx, doc, values)
	if err != nil {
		return toolError(err), nil
	}
	return s.save(ctx, p, doc)
}

func (s *Server) removeField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	field, err := req.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, doc, err := s.load(req)
	if err != nil {
		return toolError(err), nil
	}
	var match []any
	if v, ok := req.GetArguments()["value"]; ok && v != nil {
		match = append(match, v)
	}
	doc, err = p.RemoveField(doc, field, match...)
	if err != nil {
		return toolError(err), nil
	}
	return s.save(ctx, p, doc)
}

func (s *Server) searchPieces(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return jsonResult(results)
}

func (s *Server) getPieceContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PieceFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     PieceFormatContract,
		},
	}, nil
}

// load resolves the "path" argument to its engine and parsed document.
func (s *Server) load(req mcp.CallToolRequest) (*piece.Piece, *markdown.Document, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return nil, nil, err
	}
	p, err := s.registry.PieceFor(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := p.Get(markdown.CleanPath(path))
	if err != nil {
		return nil, nil, err
	}
	return p, doc, nil
}

// save validates and writes doc, then brings its index row up to date.
func (s *Server) save(ctx context.Context, p *piece.Piece, doc *markdown.Document) (*mcp.CallToolResult, error) {
	if err := p.Write(doc); err != nil {
		return toolError(err), nil
	}
	if res, ok := s.registry.SyncFile(ctx, s.db, doc.FilePath); ok && res.Failed() {
		s.logger.Warn("mcp: index sync failed",
			slog.String("path", doc.FilePath),
			slog.String("error", res.Message()))
	}
	return jsonResult(doc)
}
