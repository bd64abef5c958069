// Package strava is a small authenticated client for the Strava v3 REST API.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sameehj/strava-mcp/pkg/tokenstore"
)

const (
	DefaultBaseURL  = "https://www.strava.com/api/v3"
	DefaultOAuthURL = "https://www.strava.com/oauth/token"
	DefaultTimeout  = 30 * time.Second

	// Strava's default application limit is 100 requests every 15 minutes.
	DefaultRequestsPerWindow = 100
	DefaultWindow            = 15 * time.Minute

	maxResponseBytes = 32 << 20
	expirySkew       = time.Minute
)

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	BaseURL      string
	OAuthURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration

	// RequestsPerWindow <= 0 disables outbound rate limiting. Burst <= 0
	// lets a fresh client spend the whole window at once.
	RequestsPerWindow int
	Window            time.Duration
	Burst             int

	HTTPClient *http.Client
}

// Client calls the Strava API with a bearer token, refreshing it through the
// OAuth token endpoint when it expires or is rejected.
type Client struct {
	baseURL      string
	oauthURL     string
	clientID     string
	clientSecret string

	http    *http.Client
	limiter *rate.Limiter
	store   tokenstore.Store
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	token tokenstore.Token
}

// New builds a client starting from token. Refreshed tokens are written to
// store when it is non-nil.
func New(cfg Config, store tokenstore.Store, token tokenstore.Token) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = DefaultOAuthURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		oauthURL:     cfg.OAuthURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         httpClient,
		limiter:      newLimiter(cfg),
		store:        store,
		now:          time.Now,
		token:        token,
	}
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RequestsPerWindow <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerWindow
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(cfg.RequestsPerWindow)), burst)
}

func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// SetToken replaces the current token, e.g. after the token file was edited.
func (c *Client) SetToken(token tokenstore.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() tokenstore.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Get decodes the JSON response of GET path?query into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// Put sends form as an urlencoded body and decodes the JSON response into out.
func (c *Client) Put(ctx context.Context, path string, form url.Values, out any) error {
	body, err := c.do(ctx, http.MethodPut, path, nil, form)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// Download returns the raw response body of GET path.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// Athlete returns the authenticated athlete.
func (c *Client) Athlete(ctx context.Context) (*Athlete, error) {
	var athlete Athlete
	if err := c.Get(ctx, "/athlete", nil, &athlete); err != nil {
		return nil, err
	}
	return &athlete, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values) ([]byte, error) {
	access, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, status, err := c.send(ctx, method, path, query, form, access)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized && c.canRefresh() {
		c.logInfo("strava_token_rejected", "path", path)
		access, err = c.refreshIfStale(ctx, access)
		if err != nil {
			return nil, err
		}
		body, status, err = c.send(ctx, method, path, query, form, access)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status > 299 {
		return nil, apiError(status, body)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, form url.Values, access string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("strava rate limiter: %w", err)
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	started := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("strava request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read strava response: %w", err)
	}
	c.logDebug("strava_request", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", c.now().Sub(started).Milliseconds())
	return body, resp.StatusCode, nil
}

// accessToken returns a usable access token, refreshing first when the
// current one is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	needsRefresh := c.token.AccessToken == "" || c.token.Expired(c.now(), expirySkew)
	if !needsRefresh {
		return c.token.AccessToken, nil
	}
	if !c.canRefreshLocked() {
		if c.token.AccessToken == "" {
			return "", ErrNoCredentials
		}
		return c.token.AccessToken, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

// refreshIfStale refreshes unless another request already replaced the
// rejected token.
func (c *Client) refreshIfStale(ctx context.Context, rejected string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.AccessToken != rejected && c.token.AccessToken != "" {
		return c.token.AccessToken, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Client) canRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canRefreshLocked()
}

func (c *Client) canRefreshLocked() bool {
	return c.clientID != "" && c.clientSecret != "" && c.token.RefreshToken != ""
}

func (c *Client) refreshLocked(ctx context.Context) error {
	if !c.canRefreshLocked() {
		return ErrRefreshUnavailable
	}
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.token.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("strava token refresh: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("strava token refresh: %w", apiError(resp.StatusCode, body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return errors.New("strava token refresh: response missing access_token")
	}

	next := tokenstore.Token{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	if next.RefreshToken == "" {
		next.RefreshToken = c.token.RefreshToken
	}
	switch {
	case tr.ExpiresAt > 0:
		next.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		next.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
	}
	c.token = next
	c.logInfo("strava_token_refreshed", "expires_at", next.ExpiresAt)

	if c.store != nil {
		if err := c.store.Save(ctx, next); err != nil {
			c.logWarn("strava_token_save_failed", "error", err)
		}
	}
	return nil
}

func apiError(status int, body []byte) error {
	apiErr := &APIError{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		_ = json.Unmarshal(trimmed, apiErr)
	} else if len(trimmed) > 0 {
		apiErr.Message = truncate(string(trimmed), 200)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	apiErr.Status = status
	return apiErr
}

func decode(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode strava response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
