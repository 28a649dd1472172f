package gcp

import (
	"context"
	"errors"
	"testing"
)

// mockSecretFetcher implements SecretFetcher for testing
type mockSecretFetcher struct {
	fetchFunc func(ctx context.Context, secretPath string) (string, error)
	closeFunc func() error
	calls     []string
}

func (m *mockSecretFetcher) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	m.calls = append(m.calls, secretPath)
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, secretPath)
	}
	return "", errors.New("mock fetch not implemented")
}

func (m *mockSecretFetcher) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func TestNormalizeSecretPath(t *testing.T) {
	tests := []struct {
		name       string
		secretPath string
		want       string
	}{
		{
			name:       "full path with version",
			secretPath: "projects/my-project/secrets/my-secret/versions/1",
			want:       "projects/my-project/secrets/my-secret/versions/1",
		},
		{
			name:       "full path without version",
			secretPath: "projects/my-project/secrets/my-secret",
			want:       "projects/my-project/secrets/my-secret/versions/latest",
		},
		{
			name:       "secret name only",
			secretPath: "twitter-access-token",
			want:       "projects/crowd-project/secrets/twitter-access-token/versions/latest",
		},
		{
			name:       "secret name with path prefix",
			secretPath: "path/to/my-secret",
			want:       "projects/crowd-project/secrets/my-secret/versions/latest",
		},
	}

	client := &SecretManagerClient{projectID: "crowd-project"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := client.normalizeSecretPath(tt.secretPath)
			if got != tt.want {
				t.Errorf("normalizeSecretPath(%q) = %q, want %q", tt.secretPath, got, tt.want)
			}
		})
	}
}

func TestIsSecretPath(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"projects/p/secrets/s", true},
		{"projects/p/secrets/s/versions/2", true},
		{"plain-consumer-key", false},
		{"projects/p", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSecretPath(tt.value); got != tt.want {
			t.Errorf("IsSecretPath(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestResolveSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("literal passes through", func(t *testing.T) {
		mock := &mockSecretFetcher{}
		got, err := ResolveSecret(ctx, mock, "literal-key")
		if err != nil || got != "literal-key" {
			t.Errorf("ResolveSecret() = %q, %v", got, err)
		}
		if len(mock.calls) != 0 {
			t.Errorf("fetcher called for a literal: %v", mock.calls)
		}
	})

	t.Run("secret path is fetched and trimmed", func(t *testing.T) {
		mock := &mockSecretFetcher{
			fetchFunc: func(ctx context.Context, secretPath string) (string, error) {
				return "  s3cret\n", nil
			},
		}
		got, err := ResolveSecret(ctx, mock, "projects/p/secrets/token")
		if err != nil || got != "s3cret" {
			t.Errorf("ResolveSecret() = %q, %v", got, err)
		}
	})

	t.Run("fetch error", func(t *testing.T) {
		mock := &mockSecretFetcher{
			fetchFunc: func(ctx context.Context, secretPath string) (string, error) {
				return "", errors.New("permission denied")
			},
		}
		if _, err := ResolveSecret(ctx, mock, "projects/p/secrets/token"); err == nil {
			t.Error("ResolveSecret() expected error")
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		mock := &mockSecretFetcher{
			fetchFunc: func(ctx context.Context, secretPath string) (string, error) {
				return " ", nil
			},
		}
		if _, err := ResolveSecret(ctx, mock, "projects/p/secrets/token"); err == nil {
			t.Error("ResolveSecret() expected error for empty secret")
		}
	})

	t.Run("no fetcher", func(t *testing.T) {
		if _, err := ResolveSecret(ctx, nil, "projects/p/secrets/token"); err == nil {
			t.Error("ResolveSecret() expected error without fetcher")
		}
	})
}

func TestSecretFetcherInterface(t *testing.T) {
	var _ SecretFetcher = (*SecretManagerClient)(nil)
	var _ SecretFetcher = (*mockSecretFetcher)(nil)
}

func TestSecretManagerClient_Close_Nil(t *testing.T) {
	client := &SecretManagerClient{client: nil}
	if err := client.Close(); err != nil {
		t.Errorf("Close() with nil client unexpected error: %v", err)
	}
}
