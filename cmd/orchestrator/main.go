package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"matchday/internal/config"
	"matchday/internal/database"
	"matchday/internal/logger"
	"matchday/internal/metrics"
	"matchday/internal/orchestrator/cleanup"
	"matchday/internal/pgmq"
	"matchday/internal/processor"
	"matchday/internal/pubsub"
	"matchday/internal/repository"
	"matchday/internal/service"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

func main() {
	// Parse mode flag
	mode := flag.String("mode", "", "Orchestrator mode: cleanup|enqueue")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.StripeSecretKeySecretName != "" {
		resolver, err := service.NewSecretResolver(ctx, cfg.GCPProjectID, cfg.GCPCredentialsFile)
		if err != nil {
			logger.Fatal().Msgf("Failed to create secret resolver: %v", err)
		}
		if err := service.ResolveStripeSecrets(ctx, resolver, cfg); err != nil {
			logger.Fatal().Msgf("Failed to resolve Stripe secrets: %v", err)
		}
		resolver.Close()
	}

	// Initialize DB connection. pgmq lives in Postgres, so the driver is fixed.
	db, err := database.Open(ctx, database.Options{
		Driver:      "pgx",
		DSN:         cfg.DBConnectionString,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		logger.Fatal().Msgf("Failed to open database: %v", err)
	}
	defer db.Close()
	logger.Info().Msg("Database connection established")

	// Initialize PGMQ client
	pgmqClient := pgmq.New(db)
	if err := pgmqClient.Create(ctx, cfg.CleanupQueueName); err != nil {
		logger.Fatal().Msgf("Failed to create queue %s: %v", cfg.CleanupQueueName, err)
	}
	logger.Info().Str("queue", cfg.CleanupQueueName).Msg("PGMQ client initialized")

	subRepo := repository.NewSubscriptionRepo(db)

	switch *mode {
	case "enqueue":
		if _, err := cleanup.Enqueue(ctx, logger, pgmqClient, subRepo, cfg.CleanupQueueName, cfg.CleanupEnqueueBatchSize); err != nil {
			logger.Fatal().Msgf("enqueue failed: %v", err)
		}
	case "cleanup":
		if !cfg.StripeConfigured() {
			logger.Fatal().Msg("Stripe is not configured; the cleanup orchestrator needs the secret key and both prices")
		}
		m := metrics.New()
		proc := processor.Instrument(processor.NewStripeProcessor(processor.StripeConfig{
			SecretKey:  cfg.StripeSecretKey,
			Timeout:    cfg.StripeTimeout,
			MaxRetries: cfg.StripeMaxRetries,
		}, logger), m)
		opts := service.BillingOptions{
			Prices:      service.PriceCatalog{Monthly: cfg.StripePriceMonthly, Yearly: cfg.StripePriceYearly},
			CallTimeout: cfg.StripeTimeout,
		}
		var publisher pubsub.Publisher = pubsub.NoopPublisher{}
		if cfg.PubSubSubscriptionTopic != "" {
			var clientOpts []option.ClientOption
			if cfg.GCPCredentialsFile != "" {
				clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GCPCredentialsFile))
			}
			p, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID, clientOpts...)
			if err != nil {
				logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
			}
			defer p.Close()
			publisher = p
		}
		reconciler := service.NewReconciler(subRepo, opts.Prices, publisher, cfg.PubSubSubscriptionTopic, logger)
		cleanupSvc := service.NewCleanupService(subRepo, proc, reconciler, opts, m, logger)

		worker := cleanup.NewWorker(pgmqClient, cleanupSvc, repository.NewDLQRepository(db), cleanup.Options{
			QueueName:      cfg.CleanupQueueName,
			PollTimeoutSec: cfg.CleanupPollTimeoutSec,
			PollMaxMsg:     cfg.CleanupPollMaxMsg,
			VisibilitySec:  cfg.CleanupVisibilitySec,
			MaxRetries:     cfg.CleanupMaxRetries,
			BackoffInitial: time.Duration(cfg.CleanupBackoffInitialSec) * time.Second,
			BackoffMax:     time.Duration(cfg.CleanupBackoffMaxSec) * time.Second,
		}, logger)
		if err := worker.Run(ctx); err != nil {
			logger.Fatal().Msgf("cleanup orchestrator failed: %v", err)
		}
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	logger.Info().Msgf("%s orchestrator stopped gracefully", *mode)
}
