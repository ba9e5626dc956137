package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"matchday/internal/config"
	"matchday/internal/logger"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	retention       = 7 * 24 * time.Hour
	maxDeliveries   = 5
	ackDeadline     = 60 * time.Second
	subscriptionTTL = 31 * 24 * time.Hour
)

// Command setup-pubsub-local provisions the subscription change topic on the
// local Pub/Sub emulator: the topic, its dead-letter topic and a pull
// subscription for each.
func main() {
	reset := flag.Bool("reset", false, "delete every topic and subscription on the emulator first")
	flag.Parse()

	logger := logger.New()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Failed to load config: %v", err)
	}
	if cfg.GCPProjectID == "" {
		logger.Fatal().Msg("GCP_PROJECT_ID is not set")
	}
	if cfg.PubSubEmulatorHost == "" {
		logger.Fatal().Msg("PUBSUB_EMULATOR_HOST must be set; this command only targets the emulator")
	}
	if cfg.PubSubSubscriptionTopic == "" {
		logger.Fatal().Msg("PUBSUB_SUBSCRIPTION_TOPIC is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID,
		option.WithEndpoint(cfg.PubSubEmulatorHost),
		option.WithoutAuthentication(),
	)
	if err != nil {
		logger.Fatal().Msgf("Failed to create Pub/Sub client: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close Pub/Sub client")
		}
	}()

	if *reset {
		if err := resetEmulator(ctx, client, logger); err != nil {
			logger.Fatal().Err(err).Msg("Failed to reset emulator")
		}
	}

	topicID := cfg.PubSubSubscriptionTopic
	dlqTopic, err := ensureTopic(ctx, client, logger, topicID+"-dlq")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dead-letter topic")
	}
	topic, err := ensureTopic(ctx, client, logger, topicID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create topic")
	}

	if err := ensureSubscription(ctx, client, logger, topicID+"-sub", pubsub.SubscriptionConfig{
		Topic:            topic,
		AckDeadline:      ackDeadline,
		ExpirationPolicy: subscriptionTTL,
		RetryPolicy: &pubsub.RetryPolicy{
			MinimumBackoff: 10 * time.Second,
			MaximumBackoff: 600 * time.Second,
		},
		DeadLetterPolicy: &pubsub.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopic.String(),
			MaxDeliveryAttempts: maxDeliveries,
		},
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create subscription")
	}
	if err := ensureSubscription(ctx, client, logger, topicID+"-dlq-sub", pubsub.SubscriptionConfig{
		Topic:            dlqTopic,
		AckDeadline:      ackDeadline,
		ExpirationPolicy: subscriptionTTL,
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dead-letter subscription")
	}

	logger.Info().Str("topic", topicID).Msg("Pub/Sub setup for local environment complete")
}

// resetEmulator deletes all topics and subscriptions. Only ever run against the emulator.
func resetEmulator(ctx context.Context, client *pubsub.Client, logger zerolog.Logger) error {
	subs := client.Subscriptions(ctx)
	for {
		sub, err := subs.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return err
		}
		logger.Info().Str("subscription", sub.ID()).Msg("Deleting subscription")
		if err := sub.Delete(ctx); err != nil {
			logger.Warn().Err(err).Str("subscription", sub.ID()).Msg("Failed to delete subscription")
		}
	}

	topics := client.Topics(ctx)
	for {
		topic, err := topics.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return err
		}
		logger.Info().Str("topic", topic.ID()).Msg("Deleting topic")
		if err := topic.Delete(ctx); err != nil {
			logger.Warn().Err(err).Str("topic", topic.ID()).Msg("Failed to delete topic")
		}
	}
	return nil
}

func ensureTopic(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, topicID string) (*pubsub.Topic, error) {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		logger.Info().Str("topic", topicID).Msg("Topic already exists")
		return topic, nil
	}
	logger.Info().Str("topic", topicID).Dur("retention", retention).Msg("Creating topic")
	return client.CreateTopicWithConfig(ctx, topicID, &pubsub.TopicConfig{RetentionDuration: retention})
}

func ensureSubscription(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, subID string, cfg pubsub.SubscriptionConfig) error {
	sub := client.Subscription(subID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		existing, err := sub.Config(ctx)
		if err != nil {
			return err
		}
		if existing.AckDeadline != cfg.AckDeadline {
			logger.Info().Str("subscription", subID).Msg("Updating ack deadline")
			_, err = sub.Update(ctx, pubsub.SubscriptionConfigToUpdate{AckDeadline: cfg.AckDeadline})
			return err
		}
		logger.Info().Str("subscription", subID).Msg("Subscription is up to date")
		return nil
	}
	logger.Info().Str("subscription", subID).Msg("Creating subscription")
	_, err = client.CreateSubscription(ctx, subID, cfg)
	return err
}
