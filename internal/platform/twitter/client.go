// Package twitter is the platform client: it reads mentions and search results
// and publishes media replies through the Twitter API v1.1.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/ratelimit"
	"github.com/andywolf/crowdplay/internal/version"
	"github.com/dghubble/oauth1"
)

// Default endpoints and pacing.
const (
	DefaultAPIURL    = "https://api.twitter.com"
	DefaultUploadURL = "https://upload.twitter.com"

	// DefaultCallsPerWindow matches the mentions timeline limit, the
	// tightest of the endpoints used.
	DefaultCallsPerWindow = 75
	DefaultWindow         = 15 * time.Minute

	defaultTimeout = 30 * time.Second
	searchCount    = 50
	mentionsCount  = 200
)

// Credentials are the OAuth 1.0a user-context keys.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Validate checks that every key is present.
func (c Credentials) Validate() error {
	var missing []string
	if c.ConsumerKey == "" {
		missing = append(missing, "consumer_key")
	}
	if c.ConsumerSecret == "" {
		missing = append(missing, "consumer_secret")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "access_token_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing platform credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Client talks to the Twitter API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	uploadURL  string
	limiter    *ratelimit.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the signing HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithAPIURL sets the REST API base URL.
func WithAPIURL(u string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(u, "/")
	}
}

// WithUploadURL sets the media upload base URL.
func WithUploadURL(u string) Option {
	return func(c *Client) {
		c.uploadURL = strings.TrimRight(u, "/")
	}
}

// WithLimiter sets the per-endpoint call pacing.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient creates a client that signs requests with creds.
func NewClient(creds Credentials, opts ...Option) *Client {
	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	httpClient := config.Client(oauth1.NoContext, token)
	httpClient.Timeout = defaultTimeout

	c := &Client{
		httpClient: httpClient,
		apiURL:     DefaultAPIURL,
		uploadURL:  DefaultUploadURL,
		limiter:    ratelimit.New(DefaultCallsPerWindow, DefaultWindow),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tweet is the subset of the v1.1 tweet object crowdplay reads.
type tweet struct {
	IDStr             string  `json:"id_str"`
	FullText          string  `json:"full_text"`
	Text              string  `json:"text"`
	InReplyToStatusID *string `json:"in_reply_to_status_id_str"`
	Favorited         bool    `json:"favorited"`
	Retweeted         bool    `json:"retweeted"`
	User              struct {
		ScreenName string `json:"screen_name"`
	} `json:"user"`
}

func (t tweet) raw() command.RawReply {
	text := t.FullText
	if text == "" {
		text = t.Text
	}
	parent := ""
	if t.InReplyToStatusID != nil {
		parent = *t.InReplyToStatusID
	}
	return command.RawReply{
		ID:          t.IDStr,
		Author:      t.User.ScreenName,
		Text:        text,
		InReplyToID: parent,
		Favorited:   t.Favorited,
		Retweeted:   t.Retweeted,
	}
}

func toRaw(tweets []tweet) []command.RawReply {
	out := make([]command.RawReply, 0, len(tweets))
	for _, t := range tweets {
		out = append(out, t.raw())
	}
	return out
}

// FetchMentions returns the authenticated user's recent mentions.
func (c *Client) FetchMentions(ctx context.Context) ([]command.RawReply, error) {
	q := url.Values{}
	q.Set("tweet_mode", "extended")
	q.Set("count", fmt.Sprintf("%d", mentionsCount))

	var tweets []tweet
	if err := c.getJSON(ctx, "mentions", c.apiURL+"/1.1/statuses/mentions_timeline.json?"+q.Encode(), &tweets); err != nil {
		return nil, fmt.Errorf("failed to fetch mentions: %w", err)
	}
	return toRaw(tweets), nil
}

// Search returns popular public tweets matching query.
func (c *Client) Search(ctx context.Context, query string) ([]command.RawReply, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("tweet_mode", "extended")
	q.Set("result_type", "popular")
	q.Set("count", fmt.Sprintf("%d", searchCount))
	q.Set("include_entities", "true")

	var resp struct {
		Statuses []tweet `json:"statuses"`
	}
	if err := c.getJSON(ctx, "search", c.apiURL+"/1.1/search/tweets.json?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}
	return toRaw(resp.Statuses), nil
}

// UploadMedia uploads an image and returns its media id.
func (c *Client) UploadMedia(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("refusing to upload empty media")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("media", "screenshot.png")
	if err != nil {
		return "", fmt.Errorf("failed to create upload form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("failed to write upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/1.1/media/upload.json", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := c.do(ctx, "upload", req, &resp); err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	if resp.MediaIDString == "" {
		return "", fmt.Errorf("upload response carried no media id")
	}
	return resp.MediaIDString, nil
}

// PublishReply posts text with the media attached, as a reply to parentID.
// It returns the id of the new post.
func (c *Client) PublishReply(ctx context.Context, parentID, text, mediaID string) (string, error) {
	form := url.Values{}
	form.Set("status", text)
	if parentID != "" {
		form.Set("in_reply_to_status_id", parentID)
		form.Set("auto_populate_reply_metadata", "true")
	}
	if mediaID != "" {
		form.Set("media_ids", mediaID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/1.1/statuses/update.json", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var posted tweet
	if err := c.do(ctx, "update", req, &posted); err != nil {
		return "", fmt.Errorf("failed to publish reply: %w", err)
	}
	if posted.IDStr == "" {
		return "", fmt.Errorf("publish response carried no post id")
	}
	return posted.IDStr, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(ctx, endpoint, req, out)
}

func (c *Client) do(ctx context.Context, endpoint string, req *http.Request, out interface{}) error {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// APIError is an error response from the platform.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the platform rejected the call for rate limits.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == 88
}

func parseAPIError(statusCode int, body []byte) error {
	var payload struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	apiErr := &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		apiErr.Code = payload.Errors[0].Code
		apiErr.Message = payload.Errors[0].Message
	}
	return apiErr
}
