package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver           string `envconfig:"DB_DRIVER" default:"pgx"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	DBMigrate          bool   `envconfig:"DB_MIGRATE" default:"true"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	JSONBodyLimit      int64    `envconfig:"JSON_BODY_LIMIT" default:"1048576"`
	WebhookBodyLimit   int64    `envconfig:"WEBHOOK_BODY_LIMIT" default:"65536"`

	// Stripe settings. Secret values may instead be resolved from Secret Manager
	// through the *_SECRET names below.
	StripeSecretKey       string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripePriceMonthly    string        `envconfig:"STRIPE_PRICE_MONTHLY"`
	StripePriceYearly     string        `envconfig:"STRIPE_PRICE_YEARLY"`
	StripeSuccessURL      string        `envconfig:"STRIPE_SUCCESS_URL" default:"http://localhost:3000/billing?status=success"`
	StripeCancelURL       string        `envconfig:"STRIPE_CANCEL_URL" default:"http://localhost:3000/billing?status=cancel"`
	StripePortalReturnURL string        `envconfig:"STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/billing"`
	StripeTimeout         time.Duration `envconfig:"STRIPE_TIMEOUT" default:"10s"`
	StripeMaxRetries      int64         `envconfig:"STRIPE_MAX_RETRIES" default:"1"`

	// Google Cloud settings
	GCPProjectID                  string `envconfig:"GCP_PROJECT_ID"`
	GCPCredentialsFile            string `envconfig:"GCP_CREDENTIALS_FILE"`
	PubSubSubscriptionTopic       string `envconfig:"PUBSUB_SUBSCRIPTION_TOPIC"`
	PubSubEmulatorHost            string `envconfig:"PUBSUB_EMULATOR_HOST"`
	StripeSecretKeySecretName     string `envconfig:"STRIPE_SECRET_KEY_SECRET"`
	StripeWebhookSecretSecretName string `envconfig:"STRIPE_WEBHOOK_SECRET_SECRET"`

	// Duplicate cleanup orchestrator settings
	CleanupQueueName         string `envconfig:"CLEANUP_QUEUE_NAME" default:"billing_cleanup_queue"`
	CleanupPollTimeoutSec    int    `envconfig:"CLEANUP_POLL_TIMEOUT_SEC" default:"30"`
	CleanupPollMaxMsg        int    `envconfig:"CLEANUP_POLL_MAX_MSG" default:"10"`
	CleanupVisibilitySec     int    `envconfig:"CLEANUP_VISIBILITY_SEC" default:"120"`
	CleanupMaxRetries        int    `envconfig:"CLEANUP_MAX_RETRIES" default:"5"`
	CleanupBackoffInitialSec int    `envconfig:"CLEANUP_BACKOFF_INITIAL_SEC" default:"1"`
	CleanupBackoffMaxSec     int    `envconfig:"CLEANUP_BACKOFF_MAX_SEC" default:"60"`
	CleanupEnqueueBatchSize  int    `envconfig:"CLEANUP_ENQUEUE_BATCH_SIZE" default:"500"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StripeConfigured reports whether the processor credentials and both plan
// prices are present.
func (c *Config) StripeConfigured() bool {
	return c.StripeSecretKey != "" && c.StripePriceMonthly != "" && c.StripePriceYearly != ""
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
