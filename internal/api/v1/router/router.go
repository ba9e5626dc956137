package router

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"matchday/internal/api/v1/handler"
	"matchday/internal/config"
	"matchday/internal/metrics"
	"matchday/internal/middleware"
	"matchday/internal/processor"
	"matchday/internal/pubsub"
	"matchday/internal/repository"
	"matchday/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Deps are the external collaborators of the HTTP surface. Zero values are
// filled in from the config by New.
type Deps struct {
	DB *sql.DB
	// Processor is built from the Stripe settings when nil. It stays nil when
	// billing is not configured.
	Processor processor.Processor
	Verifier  processor.Verifier
	Publisher pubsub.Publisher
	Metrics   *metrics.Collector
}

func New(cfg *config.Config, deps Deps, logger zerolog.Logger) http.Handler {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initialized")

	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	// 1. Payment processor, built once and injected everywhere
	proc := deps.Processor
	if proc == nil && cfg.StripeConfigured() {
		proc = processor.NewStripeProcessor(processor.StripeConfig{
			SecretKey:  cfg.StripeSecretKey,
			Timeout:    cfg.StripeTimeout,
			MaxRetries: cfg.StripeMaxRetries,
		}, logger)
	}
	if proc == nil {
		logger.Warn().Msg("Stripe is not configured, billing actions will fail with not_configured")
	} else {
		proc = processor.Instrument(proc, m)
	}

	verifier := deps.Verifier
	if verifier == nil && cfg.StripeWebhookSecret != "" {
		verifier = processor.NewStripeVerifier(cfg.StripeWebhookSecret)
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = pubsub.NoopPublisher{}
	}

	// 2. Validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 3. Repositories, services and handlers
	subRepo := repository.NewSubscriptionRepo(deps.DB)
	userRepo := repository.NewUserRepo(deps.DB)
	dlqRepo := repository.NewDLQRepository(deps.DB)

	opts := service.BillingOptions{
		Prices: service.PriceCatalog{
			Monthly: cfg.StripePriceMonthly,
			Yearly:  cfg.StripePriceYearly,
		},
		SuccessURL:      cfg.StripeSuccessURL,
		CancelURL:       cfg.StripeCancelURL,
		PortalReturnURL: cfg.StripePortalReturnURL,
		CallTimeout:     cfg.StripeTimeout,
	}

	reconciler := service.NewReconciler(subRepo, opts.Prices, publisher, cfg.PubSubSubscriptionTopic, logger)
	checkoutSvc := service.NewCheckoutService(subRepo, userRepo, proc, opts, logger)
	webhookSvc := service.NewWebhookService(verifier, reconciler, dlqRepo, m, logger)
	lifecycleSvc := service.NewLifecycleService(subRepo, proc, opts, logger)
	cleanupSvc := service.NewCleanupService(subRepo, proc, reconciler, opts, m, logger)
	userSvc := service.NewUserService(userRepo)

	billingHandler := handler.NewBillingHandler(checkoutSvc, webhookSvc, lifecycleSvc, cleanupSvc, validate, logger)
	userHandler := handler.NewUserHandler(userSvc, validate, logger)

	// 4. Middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	rawBody := middleware.RawBody(cfg.WebhookBodyLimit)
	jsonBody := middleware.JSONBody(cfg.JSONBodyLimit)

	// 5. API mux, served both at the root and under /v1. Processors do not
	// follow redirects on webhook deliveries, so there is no redirect here.
	apiMux := http.NewServeMux()
	billingHandler.RegisterRoutes(apiMux, authMiddleware, rawBody, jsonBody)
	userHandler.RegisterRoutes(apiMux, authMiddleware, jsonBody)

	mux := http.NewServeMux()
	routedAPI := middleware.Routes(apiMux)
	mux.Handle("/v1/", http.StripPrefix("/v1", routedAPI))
	mux.Handle("/", routedAPI)
	mux.HandleFunc("GET /healthz", healthz(deps.DB))
	mux.Handle("GET /metrics", m.Handler())

	// 6. CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger, m)(c.Handler(middleware.Routes(mux)))
}

func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(ctx); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
