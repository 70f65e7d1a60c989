package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lexiqai/speech-gateway/internal/audio"
	"github.com/lexiqai/speech-gateway/internal/config"
	"github.com/lexiqai/speech-gateway/internal/edgetts"
	"github.com/lexiqai/speech-gateway/internal/gtts"
	"github.com/lexiqai/speech-gateway/internal/httpapi"
	"github.com/lexiqai/speech-gateway/internal/observability"
	"github.com/lexiqai/speech-gateway/internal/tts"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Strs("cors_origins", cfg.CORSAllowedOrigins).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Speech Gateway Service starting")

	store, err := audio.NewTempStore(cfg.TempDirectory())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare temp directory")
	}

	edgeClient := edgetts.NewClient(cfg)
	gttsClient := gtts.NewClient(cfg)
	svc := tts.NewService(cfg, edgeClient, edgeClient, gttsClient, store)

	mux := http.NewServeMux()
	httpapi.NewAPI(svc).Register(mux)

	// Health check endpoint
	mux.HandleFunc("GET /health", observability.HealthCheckHandler())

	// Readiness: engines are only probed through their breakers to avoid
	// spending upstream quota on every probe
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(
		observability.HealthCheck{Name: observability.EngineEdge, Check: edgeClient.Ready},
		observability.HealthCheck{Name: observability.EngineGoogle, Check: gttsClient.Ready},
		observability.HealthCheck{Name: "temp_dir", Check: store.Writable},
	))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      httpapi.Wrap(cfg, logger, mux),
		ReadTimeout:  config.Seconds(cfg.HTTPReadTimeout),
		WriteTimeout: config.Seconds(cfg.HTTPWriteTimeout),
		IdleTimeout:  config.Seconds(cfg.HTTPIdleTimeout),
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("temp_dir", store.Dir()).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
