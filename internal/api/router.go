package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/pieces"
	"github.com/starford/luzzle/internal/storage"
)

// Deps are the collaborators the API reads from.
type Deps struct {
	Registry *pieces.Registry
	DB       index.Store
	Store    storage.Provider
	Logger   *slog.Logger
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted behind the
// Bearer auth middleware.
func NewRouter(d Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/types", h.ListTypes)
	r.Get("/types/{type}/schema", h.GetSchema)

	r.Get("/pieces", h.ListPieces)
	r.Get("/pieces/*", h.GetPiece)

	r.Get("/search", h.Search)
	r.Get("/assets/*", h.GetAsset)

	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}

// MountHealth registers the unauthenticated liveness and readiness probes.
func MountHealth(r chi.Router, d Deps) {
	h := NewHandler(d)
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
}
