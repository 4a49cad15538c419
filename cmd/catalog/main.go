package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tair/marketplace-catalog/internal/catalog"
	"github.com/tair/marketplace-catalog/internal/config"
	"github.com/tair/marketplace-catalog/pkg/logger"
	"github.com/tair/marketplace-catalog/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("catalog-service", true)
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.Service.Name, cfg.Service.IsDevelopment())
	logger.SetLevel(cfg.Service.LogLevel)

	logger.Logger.Info().
		Str("service", cfg.Service.Name).
		Str("environment", cfg.Service.Environment).
		Str("log_level", cfg.Service.LogLevel).
		Str("upstream", cfg.Upstream.BaseURL).
		Str("snapshot_backend", cfg.Snapshot.Backend).
		Msg("Starting catalog service")

	tp, err := tracing.InitTracer(cfg.Service.Name, cfg.Service.Version, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(ctx, tp); err != nil {
				logger.Logger.Error().Err(err).Msg("Failed to shutdown tracer")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := catalog.InitializeApp(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize catalog")
	}
	defer cleanup()

	if n, err := app.Fetcher.Hydrate(ctx); err != nil {
		logger.Logger.Warn().Err(err).Msg("Ignoring catalog snapshot")
	} else if n > 0 {
		event := logger.Logger.Info().Int("count", n)
		if savedAt, found, err := app.Snapshots.SavedAt(ctx); err == nil && found {
			event = event.Time("saved_at", savedAt).Dur("age", time.Since(savedAt))
		}
		event.Msg("Serving persisted catalog until the first refresh")
	}

	// Warm the cache without blocking startup; requests arriving first join the same fetch.
	go func() {
		if _, err := app.Fetcher.Fetch(ctx, false); err != nil {
			logger.Logger.Warn().Err(err).Msg("Initial catalog fetch failed")
		}
	}()

	if app.Consumer != nil {
		app.Consumer.Start(ctx)
	}

	server := newHTTPServer(app, cfg)
	go func() {
		logger.Logger.Info().
			Str("port", cfg.Service.Port).
			Str("metrics_endpoint", "/metrics").
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	<-ctx.Done()
	logger.Logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

func newHTTPServer(app *catalog.App, cfg config.Config) *http.Server {
	router := mux.NewRouter()
	app.Handler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           otelhttp.NewHandler(c.Handler(router), cfg.Service.Name),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
