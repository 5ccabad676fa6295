package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/attachment"
	"github.com/starford/luzzle/internal/codec"
	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/models"
	"github.com/starford/luzzle/internal/pieces"
	"github.com/starford/luzzle/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	registry *pieces.Registry
	db       index.Store
	store    storage.Provider
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: d.Registry, db: d.DB, store: d.Store, logger: logger}
}

// wildcardPath extracts the path after the route prefix. Encoded slashes
// from generated clients (e.g. shelf%2Fdune.books.md) are accepted.
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return markdown.CleanPath(raw)
	}
	return markdown.CleanPath(decoded)
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /health/ready. The index must answer a query.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.db.ListPieces(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListTypes handles GET /types.
//
//	@Summary		List the registered piece types
//	@Tags			types
//	@Produce		json
//	@Success		200	{object}	TypeListResponse
//	@Security		BearerAuth
//	@Router			/types [get]
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	names, err := h.registry.GetTypes()
	if err != nil {
		h.writeError(w, "list types", err)
		return
	}
	rows, err := h.db.ListPieces(r.Context())
	if err != nil {
		h.writeError(w, "list types", err)
		return
	}
	indexed := make(map[string]bool, len(rows))
	for _, row := range rows {
		indexed[row.Name] = true
	}

	out := TypeListResponse{Types: make([]TypeInfo, 0, len(names))}
	for _, name := range names {
		info := TypeInfo{Name: name, Indexed: indexed[name]}
		if s, err := h.registry.Schema(name); err == nil {
			info.Fields = len(s.Fields)
		}
		out.Types = append(out.Types, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSchema handles GET /types/{type}/schema.
//
//	@Summary		Get the normalized schema of a piece type
//	@Tags			types
//	@Produce		json
//	@Param			type	path		string	true	"Piece type"
//	@Success		200		{object}	SchemaResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/types/{type}/schema [get]
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Schema(chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(w, "get schema", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListPieces handles GET /pieces.
//
//	@Summary		List indexed pieces with optional filtering and pagination
//	@Tags			pieces
//	@Produce		json
//	@Param			type	query		string	false	"Piece type"
//	@Param			field	query		string	false	"Field to filter on (requires type)"
//	@Param			value	query		string	false	"Field value, in frontmatter form"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	ItemListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pieces [get]
func (h *Handler) ListPieces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	query := index.ItemQuery{Type: q.Get("type"), Limit: limit, Offset: offset}

	if field := q.Get("field"); field != "" {
		if query.Type == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'type' is required with 'field'"))
			return
		}
		v, err := h.filterValue(query.Type, field, q.Get("value"))
		if err != nil {
			h.writeError(w, "list pieces", err)
			return
		}
		query.Field, query.Value = field, v
	}

	items, total, err := h.db.SelectItems(r.Context(), query)
	if err != nil {
		h.writeError(w, "list pieces", err)
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items, Total: total})
}

// filterValue converts a query string value to the database form stored in
// the field projection.
func (h *Handler) filterValue(pieceType, field, raw string) (any, error) {
	s, err := h.registry.Schema(pieceType)
	if err != nil {
		return nil, err
	}
	f, ok := s.Field(field)
	if !ok {
		return nil, apperr.UnknownField(pieceType, field)
	}
	v, err := codec.ParseInput(raw, f)
	if err != nil {
		return nil, err
	}
	vals, err := codec.Project(v, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s: empty value", apperr.ErrValidation, field)
	}
	return vals[0], nil
}

// GetPiece handles GET /pieces/*.
//
//	@Summary		Get an indexed piece by file path
//	@Tags			pieces
//	@Produce		json
//	@Param			path	path		string	true	"Piece file path"
//	@Success		200		{object}	models.Item
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pieces/{path} [get]
func (h *Handler) GetPiece(w http.ResponseWriter, r *http.Request) {
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	name, ok := markdown.ParseFilename(p)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	item, err := h.db.SelectItem(r.Context(), name.Type, p)
	if err != nil {
		h.writeError(w, "get piece", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Search handles GET /search.
//
//	@Summary		Full-text search across piece titles and notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.db.Search(r.Context(), q, limit)
	if err != nil {
		h.writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// GetAsset handles GET /assets/*. The wildcard is the root-relative
// attachment path stored in frontmatter, e.g. .assets/books/cover/x.png.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	p := wildcardPath(r)
	if !attachment.IsAssetPath(p) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	rc, err := h.store.OpenRead(p)
	if errors.Is(err, os.ErrNotExist) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	if err != nil {
		h.writeError(w, "open asset", err)
		return
	}
	defer rc.Close()

	det, err := attachment.Detect(rc)
	if err != nil {
		h.writeError(w, "detect asset", err)
		return
	}
	w.Header().Set("Content-Type", det.MIME)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, det.Reader); err != nil {
		h.logger.Warn("stream asset failed", slog.String("path", p), slog.String("error", err.Error()))
	}
}
