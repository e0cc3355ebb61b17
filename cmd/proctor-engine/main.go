package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-proctor/internal/api"
	"github.com/miradorstack/mirador-proctor/internal/archive"
	"github.com/miradorstack/mirador-proctor/internal/cache"
	"github.com/miradorstack/mirador-proctor/internal/config"
	"github.com/miradorstack/mirador-proctor/internal/metrics"
	"github.com/miradorstack/mirador-proctor/internal/services"
	"github.com/miradorstack/mirador-proctor/internal/session"
	"github.com/miradorstack/mirador-proctor/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-proctor", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	reportOpts, err := cfg.ReportOptions()
	if err != nil {
		logger.Error("invalid report settings", slog.Any("error", err))
		os.Exit(1)
	}

	sessionOpts := session.Options{
		Policy: cfg.Policy(),
		Filter: cfg.ObjectFilter(),
		Report: reportOpts,
		Logger: logger,
	}
	if cfg.Archive.Path != "" {
		store, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			logger.Warn("archive unavailable, sessions will not be persisted", slog.String("path", cfg.Archive.Path), slog.Any("error", err))
		} else {
			defer store.Close()
			sessionOpts.Archive = store
			logger.Info("archiving sessions", slog.String("path", cfg.Archive.Path))
		}
	}
	sessions := session.NewManager(sessionOpts)

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		cacheProvider = cache.NewMemoryProvider(nil)
	}
	defer cacheProvider.Close()

	proctorService := services.NewProctorService(logger, sessions, cacheProvider, cfg.Cache.TTL)

	server, err := api.NewServer(cfg.Server, proctorService, logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Drain()
	server.Shutdown(shutdownCtx)

	// Pending dwell timers must not fire into sessions after shutdown.
	// Closing also flushes queued archive writes before the store closes.
	sessions.CloseAll()

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("mirador-proctor stopped", slog.Duration("render_p95", proctorService.RenderLatencyP95()))
}
