package service

import (
	"context"
	"errors"
	"testing"

	"matchday/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", errors.New("secret not found: " + name)
	}
	return v, nil
}

func (mapResolver) Close() error { return nil }

func TestSecretVersionName(t *testing.T) {
	assert.Equal(t, "projects/p1/secrets/stripe-key/versions/latest", SecretVersionName("p1", "stripe-key"))
	assert.Equal(t, "projects/p2/secrets/k/versions/latest", SecretVersionName("p1", "projects/p2/secrets/k"))
	assert.Equal(t, "projects/p2/secrets/k/versions/3", SecretVersionName("p1", "projects/p2/secrets/k/versions/3"))
}

func TestResolveStripeSecrets(t *testing.T) {
	cfg := &config.Config{
		StripeSecretKey:           "from-env",
		StripeWebhookSecret:       "whsec_env",
		StripeSecretKeySecretName: "stripe-key",
	}
	require.NoError(t, ResolveStripeSecrets(context.Background(), mapResolver{"stripe-key": "sk_live_x"}, cfg))
	assert.Equal(t, "sk_live_x", cfg.StripeSecretKey)
	assert.Equal(t, "whsec_env", cfg.StripeWebhookSecret)

	cfg.StripeWebhookSecretSecretName = "missing"
	assert.Error(t, ResolveStripeSecrets(context.Background(), mapResolver{"stripe-key": "sk"}, cfg))
}
