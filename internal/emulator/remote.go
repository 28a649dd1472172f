// Package emulator provides the two ways crowdplay drives a game: the remote
// execute endpoint and local key injection.
package emulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/version"
	"github.com/golang-jwt/jwt/v4"
)

// DefaultTimeout bounds a single execute call.
const DefaultTimeout = 30 * time.Second

// tokenLifetime is how long a signed execute token stays valid.
const tokenLifetime = time.Minute

// maxScreenshotBytes caps the image read from the endpoint.
const maxScreenshotBytes = 5 << 20

// RemoteClient sends one command token per call to the emulator's execute
// endpoint.
type RemoteClient struct {
	baseURL    string
	httpClient *http.Client
	vocab      *command.Vocabulary
	signingKey []byte
	now        func() time.Time
}

// RemoteOption configures a RemoteClient.
type RemoteOption func(*RemoteClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *RemoteClient) {
		r.httpClient = client
	}
}

// WithSigningKey signs every request with an HS256 bearer token.
func WithSigningKey(key []byte) RemoteOption {
	return func(r *RemoteClient) {
		r.signingKey = key
	}
}

// WithVocabulary overrides the action-to-token mapping.
func WithVocabulary(v *command.Vocabulary) RemoteOption {
	return func(r *RemoteClient) {
		r.vocab = v
	}
}

// NewRemoteClient creates a client for the endpoint at baseURL
// (e.g. http://localhost:3535).
func NewRemoteClient(baseURL string, opts ...RemoteOption) *RemoteClient {
	r := &RemoteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		vocab:      command.RemoteVocabulary(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type executeRequest struct {
	Command string `json:"command"`
}

// Apply presses one player action.
func (r *RemoteClient) Apply(ctx context.Context, action command.Action) error {
	if !command.IsPlayerAction(action) {
		return fmt.Errorf("not a player action: %q", action)
	}
	_, err := r.execute(ctx, action)
	return err
}

// Persist asks the emulator to write its save data to disk.
func (r *RemoteClient) Persist(ctx context.Context) error {
	_, err := r.execute(ctx, command.ActionDownloadSave)
	return err
}

// Load asks the emulator to load its save data from disk.
func (r *RemoteClient) Load(ctx context.Context) error {
	_, err := r.execute(ctx, command.ActionLoadSave)
	return err
}

// Screenshot returns the current frame as image bytes.
func (r *RemoteClient) Screenshot(ctx context.Context) ([]byte, error) {
	body, err := r.execute(ctx, command.ActionScreenshot)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("emulator returned an empty screenshot")
	}
	return body, nil
}

func (r *RemoteClient) execute(ctx context.Context, action command.Action) ([]byte, error) {
	code, ok := r.vocab.Code(action)
	if !ok {
		return nil, fmt.Errorf("no emulator code for %s", action)
	}

	payload, err := json.Marshal(executeRequest{Command: code})
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	// The endpoint reads the command from the body of a GET request.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	if len(r.signingKey) > 0 {
		token, err := r.signToken(code)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emulator %s failed: %w", code, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScreenshotBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read emulator response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("emulator %s returned status %d: %s", code, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// signToken creates a short-lived token naming the command it authorizes.
func (r *RemoteClient) signToken(code string) (string, error) {
	now := r.now()
	claims := jwt.RegisteredClaims{
		Issuer:    "crowdplay",
		Subject:   code,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign execute token: %w", err)
	}
	return signed, nil
}
