// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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

	"github.com/starford/noosphere/internal/api"
	"github.com/starford/noosphere/internal/classify"
	"github.com/starford/noosphere/internal/export"
	"github.com/starford/noosphere/internal/mcpserver"
	"github.com/starford/noosphere/internal/memory"
	"github.com/starford/noosphere/internal/metrics"
	"github.com/starford/noosphere/internal/sse"
	"github.com/starford/noosphere/internal/storage"
	"github.com/starford/noosphere/internal/store"
)

const serviceName = "noosphere"

// components are the long-lived objects shared by every entry point.
type components struct {
	db         *store.DB
	classifier *classify.Classifier
	broker     *sse.Broker
	service    *memory.Service
	mcp        *mcpserver.Server
}

func (c *components) Close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	app.logger = slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(app.logger)
	return app, nil
}

// open builds the store, classifier, broker, memory service and MCP server.
func (a *application) open() (*components, error) {
	cfg := a.config

	classifier := classify.Default()
	if cfg.Classifier.LexiconPath != "" {
		lex, err := classify.LoadLexicon(cfg.Classifier.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		if classifier, err = classify.New(lex); err != nil {
			return nil, fmt.Errorf("compile lexicon: %w", err)
		}
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if !db.FullText() {
		a.logger.Warn("SQLite built without FTS5, search falls back to LIKE scans; build with -tags sqlite_fts5 (make build)")
	}

	broker := sse.NewBroker(cfg.SSE.ProjectsThrottle, sse.WithHeartbeat(cfg.SSE.Heartbeat))

	svc := memory.NewService(db,
		memory.WithLogger(a.logger),
		memory.WithClassifier(classifier),
		memory.WithNotifier(broker),
		memory.WithRecentLimit(cfg.Browse.RecentLimit),
	)

	return &components{
		db:         db,
		classifier: classifier,
		broker:     broker,
		service:    svc,
		mcp:        mcpserver.New(svc, cfg.Auth.DefaultUser, a.logger),
	}, nil
}

// watchLexicon runs the lexicon hot-reload loop when a lexicon file is configured.
func (a *application) watchLexicon(ctx context.Context, c *components) error {
	path := a.config.Classifier.LexiconPath
	if path == "" {
		return nil
	}
	if err := classify.Watch(ctx, path, c.classifier, a.logger); err != nil {
		a.logger.Warn("lexicon watcher disabled", slog.String("error", err.Error()))
	}
	return nil
}

// newRouter assembles the HTTP surface: health, metrics, REST API, SSE and
// the streamable MCP endpoint.
func newRouter(cfg *Config, c *components) http.Handler {
	res := cfg.Auth.Resolver()
	hook := api.UserHook(c.db.EnsureUser)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := c.service.Ping(r.Context()); err != nil {
			slog.Error("readiness check failed", slog.String("error", err.Error()))
			writeHealth(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
		search := "like"
		if c.db.FullText() {
			search = "fts5"
		}
		writeHealth(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"search":      search,
			"sse_clients": c.broker.ClientCount(),
		})
	})

	r.Handle("/metrics", metrics.Handler())

	// Mount API routes under /api; SSE lives at /api/events.
	r.Mount("/api", api.NewRouter(c.service, res, hook, c.broker))

	r.Handle(cfg.MCP.Path, api.AuthMiddleware(res, hook)(c.mcp.HTTPHandler(cfg.MCP.Path)))

	return r
}

func writeHealth(w http.ResponseWriter, status int, body map[string]any) {
	body["service"] = serviceName
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("lexicon_path", cfg.Classifier.LexiconPath),
		slog.String("mcp_path", cfg.MCP.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := app.open()
	if err != nil {
		return err
	}
	defer c.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newRouter(cfg, c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.watchLexicon(gCtx, c)
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

// errShutdown cancels the group once the HTTP server has stopped so the
// lexicon watcher exits too.
var errShutdown = errors.New("shutdown")

// RunStdio serves MCP over stdin/stdout until the client disconnects. Logs
// must not go to stdout in this mode; pass WithLogOutput(os.Stderr).
func RunStdio(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	c, err := app.open()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.db.EnsureUser(ctx, app.config.Auth.DefaultUser); err != nil {
		return fmt.Errorf("register user: %w", err)
	}

	app.logger.Info("MCP stdio server starting", slog.String("user_id", app.config.Auth.DefaultUser))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return app.watchLexicon(gCtx, c)
	})
	g.Go(func() error {
		defer cancel()
		return c.mcp.ServeStdio()
	})
	return g.Wait()
}

// Export writes projects of userID as Markdown under dir. An empty projectID
// exports every project.
func Export(ctx context.Context, dir, projectID, userID string, opts ...Option) (export.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return export.Report{}, err
	}
	if userID == "" {
		userID = app.config.Auth.DefaultUser
	}

	c, err := app.open()
	if err != nil {
		return export.Report{}, err
	}
	defer c.Close()

	dst, err := storage.NewFS(dir)
	if err != nil {
		return export.Report{}, fmt.Errorf("init export dir: %w", err)
	}

	exp := export.New(c.service, dst, app.logger)
	if projectID != "" {
		return exp.Project(ctx, projectID, userID)
	}
	return exp.All(ctx, userID)
}
