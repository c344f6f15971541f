package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finko-backend/internal/api/handlers"
	"github.com/dvloznov/finko-backend/internal/app"
	"github.com/dvloznov/finko-backend/internal/config"
	"github.com/dvloznov/finko-backend/internal/jobs/inmemory"
	"github.com/dvloznov/finko-backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	log := logger.NewWithConfig(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore(1000)
	jobQueue := inmemory.NewQueue(cfg.QueueBuffer, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting Gmail notification workers")
	if err := jobQueue.Start(workerCtx, a.GmailJobHandler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job queue")
	}

	// Initialize handlers
	var gmailHandler *handlers.GmailHandler
	if cfg.GmailEnabled() {
		gmailHandler = handlers.NewGmailHandler(a.Mailboxes, cfg.FrontendURL, cfg.MobileRedirectURL, log)
	} else {
		log.Warn().Msg("Google OAuth is not configured - Gmail connection endpoints are disabled")
	}

	handler := handlers.NewRouter(handlers.RouterConfig{
		Webhooks:       handlers.NewWebhooksHandler(a.Ingest, jobQueue, log),
		Gmail:          gmailHandler,
		Profiles:       handlers.NewProfilesHandler(a.Store, log),
		Keys:           handlers.NewKeysHandler(a.Keys, log),
		Ledger:         handlers.NewLedgerHandler(a.Store, log),
		Jobs:           handlers.NewJobsHandler(jobStore, log),
		Health:         handlers.NewHealthHandler(a.Store),
		Tokens:         a.Tokens,
		CronSecret:     cfg.CronSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
