package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"matchday/internal/metrics"
	"matchday/internal/model"
	"matchday/internal/processor"
	"matchday/internal/repository"

	"github.com/rs/zerolog"
)

// WebhookService verifies processor webhooks and hands them to the reconciler.
type WebhookService interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

type webhookService struct {
	verifier   processor.Verifier
	reconciler Reconciler
	dlq        repository.DLQRepository
	metrics    *metrics.Collector
	logger     zerolog.Logger
}

// NewWebhookService returns the ingestor. A nil verifier means the signing
// secret is missing and every delivery fails with ErrNotConfigured.
func NewWebhookService(verifier processor.Verifier, reconciler Reconciler, dlq repository.DLQRepository, m *metrics.Collector, logger zerolog.Logger) WebhookService {
	return &webhookService{
		verifier:   verifier,
		reconciler: reconciler,
		dlq:        dlq,
		metrics:    m,
		logger:     logger.With().Str("service", "WebhookService").Logger(),
	}
}

func (s *webhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	if s.verifier == nil {
		return newError(ErrNotConfigured, ReasonNotConfigured, errors.New("webhook secret is not set"))
	}

	ev, err := s.verifier.ConstructEvent(payload, signature)
	switch {
	case errors.Is(err, processor.ErrInvalidSignature):
		s.logger.Warn().Err(err).Msg("Webhook signature verification failed")
		s.metrics.RecordWebhookEvent("unknown", "invalid_signature")
		return newError(ErrInvalidSignature, ReasonInvalidSignature, err)
	case errors.Is(err, processor.ErrUnhandledEvent):
		env := peekEnvelope(payload)
		s.logger.Debug().Str("event_id", env.ID).Str("event_type", env.Type).Msg("Ignoring unhandled webhook event")
		s.metrics.RecordWebhookEvent("unhandled", "ignored")
		return nil
	case err != nil:
		env := peekEnvelope(payload)
		s.logger.Error().Err(err).Str("event_id", env.ID).Str("event_type", env.Type).Msg("Failed to decode verified webhook event")
		s.metrics.RecordWebhookEvent("unknown", "failed")
		s.deadLetter(ctx, env, payload, err)
		return fmt.Errorf("decode webhook event: %w", err)
	}

	kind := string(ev.Kind())
	lg := s.logger.With().Str("event_id", ev.EventID()).Str("kind", kind).Logger()
	lg.Info().Msg("Stripe webhook received")

	outcome, err := s.reconciler.Apply(ctx, ev)
	if err != nil {
		lg.Error().Err(err).Msg("Failed to apply webhook event")
		s.metrics.RecordWebhookEvent(kind, "failed")
		s.deadLetter(ctx, peekEnvelope(payload), payload, err)
		return fmt.Errorf("apply event %s: %w", ev.EventID(), err)
	}
	s.metrics.RecordWebhookEvent(kind, string(outcome))
	lg.Debug().Str("outcome", string(outcome)).Msg("Webhook event processed")
	return nil
}

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func peekEnvelope(payload []byte) envelope {
	var env envelope
	_ = json.Unmarshal(payload, &env)
	return env
}

// deadLetter stores the raw event for operator replay. The write is detached
// from the request context so a dropped connection does not lose it.
func (s *webhookService) deadLetter(ctx context.Context, env envelope, payload []byte, cause error) {
	if s.dlq == nil {
		return
	}
	attrs, err := json.Marshal(map[string]string{"event_type": env.Type, "error": cause.Error()})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode dead letter attributes")
		return
	}
	attrStr := string(attrs)
	msg := &model.DeadLetterMessage{
		Source:     model.DeadLetterSourceWebhook,
		MessageID:  env.ID,
		Payload:    string(payload),
		Attributes: &attrStr,
		Status:     model.DeadLetterStatusFailed,
	}
	if err := s.dlq.Create(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Error().Err(err).Str("event_id", env.ID).Msg("Failed to store dead letter message")
	}
}
