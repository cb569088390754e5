// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ocrlabel/internal/api"
	"github.com/starford/ocrlabel/internal/cursor"
	"github.com/starford/ocrlabel/internal/labelservice"
	"github.com/starford/ocrlabel/internal/ledger"
	"github.com/starford/ocrlabel/internal/mcpserver"
	"github.com/starford/ocrlabel/internal/metrics"
	"github.com/starford/ocrlabel/internal/models"
	"github.com/starford/ocrlabel/internal/selector"
	"github.com/starford/ocrlabel/internal/sse"
	"github.com/starford/ocrlabel/internal/storage"
)

// runtime is everything built from the config that the commands share.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	store   *cursor.Store
	db      *ledger.DB
	svc     *labelservice.Service
	metrics *metrics.Metrics
	broker  *sse.Broker
	closers []func() error
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// build opens the dataset, cursor, ledger and service.
func build(ctx context.Context, app *application) (*runtime, error) {
	cfg := app.config
	rt := &runtime{cfg: cfg}

	out := app.logOutput
	if cfg.App.LogFile != "" {
		f, err := os.OpenFile(cfg.App.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rt.closers = append(rt.closers, f.Close)
		out = io.MultiWriter(out, f)
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	rt.logger = logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Dataset.DataDir),
		slog.String("labeled_dir", cfg.Dataset.LabeledDir),
		slog.String("ledger_path", cfg.Ledger.Path),
		slog.String("selector", cfg.Selector.Kind),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	fail := func(err error) (*runtime, error) {
		rt.Close()
		return nil, err
	}

	// Storage over the dataset and output directories.
	data, err := storage.NewFS(cfg.Dataset.DataDir)
	if err != nil {
		return fail(fmt.Errorf("init dataset: %w", err))
	}
	labeled, err := storage.NewFS(cfg.Dataset.LabeledDir)
	if err != nil {
		return fail(fmt.Errorf("init labeled dir: %w", err))
	}

	store, err := cursor.Open(data.Root(), labeled.Root(),
		cursor.WithOverflow(cfg.Cursor.Overflow),
		cursor.WithLogger(logger))
	if err != nil {
		return fail(fmt.Errorf("init cursor: %w", err))
	}
	rt.store = store

	db, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fail(fmt.Errorf("init ledger: %w", err))
	}
	rt.db = db
	rt.closers = append(rt.closers, db.Close)

	// Labeled snapshot: files already in the output directory plus sources the
	// ledger saw for this dataset.
	seen, err := labeled.List()
	if err != nil {
		return fail(fmt.Errorf("list labeled dir: %w", err))
	}
	sources, err := db.LabeledSources(ctx, store.DataDir())
	if err != nil {
		return fail(err)
	}
	seen = append(seen, sources...)

	sel, err := selector.New(selector.Config{
		Kind:         cfg.Selector.Kind,
		CacheTimeout: cfg.Selector.CacheTimeout,
		Labeled:      seen,
	}, store)
	if err != nil {
		return fail(err)
	}
	logger.Info("cursor ready",
		slog.String("path", store.Path()),
		slog.String("overflow", string(store.Overflow())),
		slog.Int("images", store.Len()),
		slog.Int("index", store.Index()),
		slog.Int("labeled_snapshot", len(seen)))

	// progress.updated carries Status. rt.svc is set below, before anything
	// can publish or connect.
	rt.broker = sse.NewBroker(2*time.Second,
		sse.WithProgress(func(ctx context.Context) (*models.Progress, error) {
			return rt.svc.Status(ctx)
		}),
		sse.WithLogger(logger))
	rt.closers = append(rt.closers, func() error { rt.broker.Close(); return nil })
	rt.metrics = metrics.New()
	rt.metrics.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics.ObserveSSEClients(rt.broker.ClientCount)
	rt.metrics.CursorIndex.Set(float64(store.Index()))

	rt.svc = labelservice.New(store, sel, data, labeled,
		labelservice.WithLedger(db),
		labelservice.WithMetrics(rt.metrics),
		labelservice.WithNotifier(rt.broker.Publish),
		labelservice.WithLogger(logger),
		labelservice.WithTextMaxLen(cfg.Labeling.TextMaxLen),
		labelservice.WithWatchLabeled(cfg.Selector.WatchLabeled),
	)
	return rt, nil
}

func writeStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the labeling web server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := build(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	logger := rt.logger

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check and metrics endpoints (unauthenticated).
	r.Get("/health/live", writeStatus)
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if _, err := os.Stat(rt.store.Path()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"cursor unavailable"}`))
			return
		}
		writeStatus(w, req)
	})
	r.Handle("/metrics", rt.metrics.Handler())

	// Labeling pages, JSON API and SSE behind auth.
	r.Mount("/", api.NewRouter(rt.svc, cfg.Auth.Options(), rt.broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the labeled directory for copies written by other processes.
	g.Go(func() error {
		err := ledger.Watch(gCtx, cfg.Dataset.LabeledDir, logger, rt.svc.HandleLabeledEvent)
		if err != nil {
			logger.Warn("labeled dir watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close SSE streams first; Shutdown waits for active handlers.
		rt.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the labeling tools over stdio. Logs go to the configured
// log output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.logOutput == os.Stdout {
		app.logOutput = os.Stderr
	}
	rt, err := build(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}

// PrintStatus writes the cursor progress as JSON to w.
func PrintStatus(ctx context.Context, w io.Writer, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.logOutput == os.Stdout {
		app.logOutput = io.Discard
	}
	rt, err := build(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := rt.svc.Status(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
