package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mikkel102454/storage-selfhosted/internal/config"
	"github.com/Mikkel102454/storage-selfhosted/internal/handlers"
	"github.com/Mikkel102454/storage-selfhosted/internal/metrics"
	"github.com/Mikkel102454/storage-selfhosted/internal/middleware"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository/connect"
	"github.com/Mikkel102454/storage-selfhosted/internal/storage/filesystem"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
	"github.com/Mikkel102454/storage-selfhosted/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	slog.SetDefault(newLogger(cfg.Log))

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting storage server",
		"port", cfg.Port,
		"storage_root", cfg.StorageRoot,
		"database_driver", cfg.Database.Driver,
		"max_chunk_size", cfg.Upload.MaxChunkSize,
		"max_total_chunks", cfg.Upload.MaxTotalChunks,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repos, err := connect.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer repos.Close()

	store, err := filesystem.New(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	slog.Info("storage root ready", "path", store.Root())

	svc := uploads.NewService(store, repos, uploads.Config{
		MaxChunkSize:   cfg.Upload.MaxChunkSize,
		MaxTotalChunks: cfg.Upload.MaxTotalChunks,
	})

	sweeper := uploads.NewSweeper(svc, cfg.Upload.SweepInterval, cfg.Upload.StagingTimeout)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	if cfg.MetricsEnabled {
		prometheus.MustRegister(metrics.NewUploadsCollector(svc.ActiveUploads, store))
	}

	trusted, invalid := utils.ParseProxyList(cfg.TrustedProxies)
	if len(invalid) > 0 {
		slog.Warn("ignoring invalid trusted proxy entries", "entries", invalid)
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newRouter(routerDeps{
			cfg:       cfg,
			repos:     repos,
			store:     store,
			svc:       svc,
			trusted:   trusted,
			startTime: time.Now(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Start HTTP server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		sweeper.Stop(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Stop sweeping first so no staging file disappears under a draining write.
	sweeper.Stop(shutdownCtx)
	cancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("in-flight uploads did not finish", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		if err := server.Close(); err != nil {
			slog.Error("server close failed", "error", err)
		}
		return err
	}

	slog.Info("server shutdown complete")
	return nil
}

// newLogger builds the slog handler selected by the log configuration.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

type routerDeps struct {
	cfg       *config.Config
	repos     *repository.Repositories
	store     *filesystem.Store
	svc       *uploads.Service
	trusted   utils.ProxyList
	startTime time.Time
}

// newRouter wires the HTTP surface. Middleware order: Recovery -> RequestID -> ClientIP ->
// Logging -> Metrics -> handlers, with owner identity required under /api.
func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP(d.trusted))
	r.Use(middleware.LoggingMiddleware)
	if d.cfg.MetricsEnabled {
		r.Use(metrics.Middleware)
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/health", handlers.HealthHandler(d.repos.Health, d.store, d.svc.ActiveUploads, d.startTime))
	r.Get("/health/live", handlers.HealthLivenessHandler(d.repos.Health))

	r.Get("/api/config", handlers.PublicConfigHandler(d.svc.Config()))

	r.Group(func(r chi.Router) {
		r.Use(middleware.OwnerIdentity(d.cfg.Identity.OwnerHeader, d.repos.Owners))

		r.Post("/api/files/upload", handlers.UploadChunkHandler(d.svc))
		r.Get("/api/uploads/{uploadId}", handlers.UploadStatusHandler(d.svc))
		r.Get("/api/folders/{folderId}/files/{fileId}/download", handlers.DownloadHandler(d.svc))
	})

	return r
}
