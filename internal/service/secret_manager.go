package service

import (
	"context"
	"fmt"
	"strings"

	"matchday/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretResolver reads secret values, e.g. the processor API keys.
type SecretResolver interface {
	// Resolve returns the latest version of the named secret.
	Resolve(ctx context.Context, name string) (string, error)
	Close() error
}

type secretManagerResolver struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretResolver creates a Secret Manager backed resolver. credentialsFile
// may be empty to use application default credentials.
func NewSecretResolver(ctx context.Context, projectID, credentialsFile string) (SecretResolver, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP Project ID is not set")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &secretManagerResolver{client: client, projectID: projectID}, nil
}

func (s *secretManagerResolver) Resolve(ctx context.Context, name string) (string, error) {
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: SecretVersionName(s.projectID, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(result.Payload.Data)), nil
}

func (s *secretManagerResolver) Close() error {
	return s.client.Close()
}

// SecretVersionName expands a short secret name to the latest-version
// resource path. Fully qualified names are returned unchanged.
func SecretVersionName(projectID, name string) string {
	if strings.HasPrefix(name, "projects/") {
		if strings.Contains(name, "/versions/") {
			return name
		}
		return name + "/versions/latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name)
}

// ResolveStripeSecrets overwrites the Stripe keys in cfg with Secret Manager
// values for every secret name that is configured.
func ResolveStripeSecrets(ctx context.Context, r SecretResolver, cfg *config.Config) error {
	targets := []struct {
		name string
		dst  *string
	}{
		{cfg.StripeSecretKeySecretName, &cfg.StripeSecretKey},
		{cfg.StripeWebhookSecretSecretName, &cfg.StripeWebhookSecret},
	}
	for _, t := range targets {
		if t.name == "" {
			continue
		}
		v, err := r.Resolve(ctx, t.name)
		if err != nil {
			return err
		}
		*t.dst = v
	}
	return nil
}
