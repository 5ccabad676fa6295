// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/luzzle/internal/api"
	"github.com/starford/luzzle/internal/models"
	"github.com/starford/luzzle/internal/piece"
	"github.com/starford/luzzle/internal/sse"
)

// Run starts the HTTP server and the file watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		var closer io.Closer
		logger, closer = NewLogger(cfg.App, os.Stdout)
		defer closer.Close()
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_root", cfg.Storage.Root),
		slog.String("sqlite_path", cfg.DatabasePath()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ws, err := OpenWorkspace(cfg, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	Reconcile(ctx, ws, piece.SyncOptions{}, func(r models.Result) {
		LogResult(logger, r)
	})

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	deps := api.Deps{
		Registry: ws.Registry,
		DB:       ws.DB,
		Store:    ws.Store,
		Logger:   logger,
		Events:   broker,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	api.MountHealth(r, deps)
	r.Mount("/api", api.NewRouter(deps, cfg.Auth.AuthEnabled(), cfg.Auth.Token))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// The watcher feeds every index change to SSE clients.
	g.Go(func() error {
		return ws.Registry.Watch(gCtx, ws.DB, cfg.Storage.Root, broker.PublishResult)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the watcher as well.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// Reconcile brings the index in line with the storage root: the type
// registry first, then every item. Each outcome is passed to fn.
func Reconcile(ctx context.Context, ws *Workspace, opts piece.SyncOptions, fn func(models.Result)) {
	for _, ch := range []func() <-chan models.Result{
		func() <-chan models.Result { return ws.Registry.Sync(ctx, ws.DB, opts) },
		func() <-chan models.Result { return ws.Registry.Prune(ctx, ws.DB, opts) },
		func() <-chan models.Result { return ws.Registry.SyncItems(ctx, ws.DB, opts) },
		func() <-chan models.Result { return ws.Registry.PruneItems(ctx, ws.DB, opts) },
	} {
		for res := range ch() {
			fn(res)
		}
	}
}

// LogResult logs one sync outcome. Skipped items are logged at Debug.
func LogResult(logger *slog.Logger, r models.Result) {
	switch {
	case r.Failed():
		logger.Warn("sync failed", slog.String("file", r.File), slog.String("error", r.Message()))
	case r.Action == models.ActionSkipped:
		logger.Debug("sync", slog.String("file", r.File), slog.String("action", string(r.Action)))
	default:
		logger.Info("sync", slog.String("file", r.File), slog.String("action", string(r.Action)))
	}
}
