package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchday/internal/api/v1/router"
	"matchday/internal/config"
	"matchday/internal/database"
	"matchday/internal/logger"
	"matchday/internal/pubsub"
	"matchday/internal/service"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// @title Matchday Billing API
// @version 1.0
// @description Subscription checkout, webhook and lifecycle endpoints
// @host localhost:8080
// @BasePath /v1
// @Schemes http https

func main() {
	logger := logger.New()

	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	ctx := context.Background()

	// 2. Resolve Stripe secrets from Secret Manager when configured
	if cfg.StripeSecretKeySecretName != "" || cfg.StripeWebhookSecretSecretName != "" {
		resolver, err := service.NewSecretResolver(ctx, cfg.GCPProjectID, cfg.GCPCredentialsFile)
		if err != nil {
			logger.Fatal().Msgf("Failed to create secret resolver: %v", err)
		}
		if err := service.ResolveStripeSecrets(ctx, resolver, cfg); err != nil {
			logger.Fatal().Msgf("Failed to resolve Stripe secrets: %v", err)
		}
		resolver.Close()
		logger.Info().Msg("Stripe secrets resolved from Secret Manager")
	}

	// 3. Open DB connection and apply migrations
	db, err := database.Open(ctx, database.Options{
		Driver:      cfg.DBDriver,
		DSN:         cfg.DBConnectionString,
		Development: cfg.IsDevelopment(),
		Migrate:     cfg.DBMigrate,
	})
	if err != nil {
		logger.Fatal().Msgf("Failed to open database: %v", err)
	}
	defer db.Close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("Database connection successful")

	// 4. Subscription change publisher
	deps := router.Deps{DB: db}
	if cfg.PubSubSubscriptionTopic != "" {
		var opts []option.ClientOption
		if cfg.GCPCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCPCredentialsFile))
		}
		publisher, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID, opts...)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
		}
		defer publisher.Close()
		deps.Publisher = publisher
	}

	// 5. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(cfg, deps, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 6. Start server in a goroutine
	go func() {
		logger.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Msgf("Listen: %s", err)
		}
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Msgf("Server forced to shutdown: %v", err)
	}
	logger.Info().Msg("Server shut down gracefully")
}
