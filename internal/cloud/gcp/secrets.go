package gcp

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// secretTimeout bounds a single secret access.
const secretTimeout = 10 * time.Second

// SecretManagerClient wraps the GCP Secret Manager client
type SecretManagerClient struct {
	client    *secretmanager.Client
	projectID string
}

// SecretFetcher defines the interface for fetching secrets
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// NewSecretManagerClient creates a new Secret Manager client
func NewSecretManagerClient(ctx context.Context, opts ...option.ClientOption) (*SecretManagerClient, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	projectID, err := getProjectID(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to get project ID: %w", err)
	}

	return &SecretManagerClient{
		client:    client,
		projectID: projectID,
	}, nil
}

// FetchSecret retrieves a secret from GCP Secret Manager
// secretPath can be in one of the following formats:
// - projects/PROJECT_ID/secrets/SECRET_NAME/versions/VERSION
// - projects/PROJECT_ID/secrets/SECRET_NAME (defaults to latest)
// - SECRET_NAME (requires projectID from environment)
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, secretTimeout)
	defer cancel()

	name := c.normalizeSecretPath(secretPath)

	result, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version %s: %w", name, err)
	}

	return string(result.Payload.Data), nil
}

// normalizeSecretPath ensures the secret path is in the correct format
// If the path is just a secret name, it constructs the full path with "latest" version
func (c *SecretManagerClient) normalizeSecretPath(secretPath string) string {
	// If it's already a full path with version, return as-is
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}

	// If it's a full path without version, append /versions/latest
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}

	// If it's just a secret name, construct the full path using the project ID
	secretName := path.Base(secretPath)
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, secretName)
}

// Close closes the Secret Manager client
func (c *SecretManagerClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsSecretPath reports whether value names a Secret Manager secret rather
// than holding a literal credential.
func IsSecretPath(value string) bool {
	return strings.HasPrefix(value, "projects/") && strings.Contains(value, "/secrets/")
}

// ResolveSecret returns value unchanged when it is a literal, or the trimmed
// payload of the secret it names. A nil fetcher with a secret path is an error.
func ResolveSecret(ctx context.Context, fetcher SecretFetcher, value string) (string, error) {
	if !IsSecretPath(value) {
		return value, nil
	}
	if fetcher == nil {
		return "", fmt.Errorf("secret %s configured but Secret Manager is unavailable", value)
	}
	secret, err := fetcher.FetchSecret(ctx, value)
	if err != nil {
		return "", err
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("secret %s is empty", value)
	}
	return secret, nil
}
