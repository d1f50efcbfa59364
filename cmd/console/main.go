package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dialdesk/console/internal/config"
	"github.com/dialdesk/console/internal/effects"
	"github.com/dialdesk/console/internal/engine"
	"github.com/dialdesk/console/internal/httpapi"
	"github.com/dialdesk/console/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("api", cfg.APIBaseURL).
		Str("socket", cfg.SocketURL).
		Msg("starting dialdesk console")

	token, err := loadToken(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("no operator credential available")
	}

	// Build the sync engine
	sink := effects.NewLogSink(log.Logger)
	eng := engine.New(cfg, sink, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Connect(ctx, token); err != nil {
		log.Fatal().Err(err).Msg("failed to start connection")
	}

	// Create router for the local UI facade
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler)

	apiHandler := httpapi.NewHandler(eng, log.Logger)
	r.Route("/api", apiHandler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("facade listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start facade server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down console...")

	eng.Disconnect()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("facade forced to shutdown")
	}

	log.Info().Msg("console stopped")
}

// loadToken reads the bearer credential from its external store: a file
// when configured, the environment otherwise
func loadToken(cfg *config.Config) (string, error) {
	if cfg.AuthTokenFile != "" {
		data, err := os.ReadFile(cfg.AuthTokenFile)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if cfg.AuthToken != "" {
		return cfg.AuthToken, nil
	}
	return "", fmt.Errorf("neither AUTH_TOKEN nor AUTH_TOKEN_FILE is set")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"dialdesk-console"}`)
}
