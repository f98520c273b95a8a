// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/laguz/internal/api"
	"github.com/starford/laguz/internal/docservice"
	"github.com/starford/laguz/internal/indexer"
	"github.com/starford/laguz/internal/mcpserver"
	"github.com/starford/laguz/internal/meta"
	"github.com/starford/laguz/internal/search"
	"github.com/starford/laguz/internal/sse"
	"github.com/starford/laguz/internal/store"
	"github.com/starford/laguz/internal/vault"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("meta_dir", cfg.Meta.Dir),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize document store.
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	// Initialize metadata store.
	m, err := meta.Open(cfg.Meta.Dir)
	if err != nil {
		return fmt.Errorf("init meta store: %w", err)
	}
	defer m.Close()

	// Event bus, search index and the document service.
	bus := indexer.NewBus()
	idx := search.New(cfg.Index.SearchableProps, logger)
	docs := docservice.NewService(docservice.Config{
		Store:  st,
		Bus:    bus,
		Search: idx,
		Logger: logger,
	})

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Index maintenance pipeline: bus events feed the debounced scheduler,
	// which drives the task reconciler; the rebuilder shares the scheduler's
	// executor so batches never overlap live reindexing. The reindex-all
	// event resyncs the search index and requests a full rebuild, so the
	// rebuilder is captured by reference before it exists.
	var rebuilder *indexer.Rebuilder
	reconciler := indexer.NewReconciler(st, logger)
	sched := indexer.NewScheduler(reconciler.Handle, indexer.SchedulerConfig{
		Debounce: time.Duration(cfg.Index.DebounceMS) * time.Millisecond,
		OnReindex: func() {
			docs.SyncSearch()
			rebuilder.Request(ctx)
		},
		Logger: logger,
	})
	defer sched.Shutdown()

	rebuilder = indexer.NewRebuilder(st, m, indexer.RebuilderConfig{
		BatchSize:  cfg.Index.RebuildBatchSize,
		Exec:       sched.Do,
		OnProgress: broker.PublishIndexProgress,
		Logger:     logger,
	})

	bus.Subscribe(sched.HandleEvent)
	bus.Subscribe(broker.PublishDocEvent)

	// Warm the search index from the store.
	docs.SyncSearch()

	// Resume an interrupted rebuild if one was pending at last shutdown.
	// The global reindex event goes over the bus so every subscriber sees
	// the same entry point the handlers do.
	if need, err := rebuilder.NeedsRebuild(); err != nil {
		logger.Warn("rebuild flag check failed", slog.String("error", err.Error()))
	} else if need {
		logger.Info("Pending rebuild detected, resuming")
		bus.Emit(indexer.Event{Kind: indexer.KindReindexAll})
	}

	// Build API router.
	apiRouter := api.NewRouter(docs, rebuilder, sched, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Optional vault mirror: sync once, then watch for file changes.
	if cfg.Vault.Enabled() {
		if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
			return fmt.Errorf("create vault dir: %w", err)
		}
		fsys, err := vault.NewFS(cfg.Vault.Path)
		if err != nil {
			return fmt.Errorf("init vault: %w", err)
		}
		mirror := vault.NewMirror(fsys, docs, logger)
		if err := mirror.Sync(gCtx); err != nil {
			logger.Warn("initial vault sync failed", slog.String("error", err.Error()))
		}
		g.Go(func() error {
			if err := mirror.Watch(gCtx); err != nil {
				logger.Warn("vault watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP surface over stdio until the client disconnects.
// It reuses the same store and service wiring as Run but starts no HTTP
// server, watcher or scheduler.
func RunMCP(cfg *Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	m, err := meta.Open(cfg.Meta.Dir)
	if err != nil {
		return fmt.Errorf("init meta store: %w", err)
	}
	defer m.Close()

	idx := search.New(cfg.Index.SearchableProps, logger)
	docs := docservice.NewService(docservice.Config{
		Store:  st,
		Search: idx,
		Logger: logger,
	})
	docs.SyncSearch()

	rebuilder := indexer.NewRebuilder(st, m, indexer.RebuilderConfig{
		BatchSize: cfg.Index.RebuildBatchSize,
		Logger:    logger,
	})

	return mcpserver.New(docs, rebuilder).ServeStdio()
}
