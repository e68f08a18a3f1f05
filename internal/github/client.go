package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/microsoft/gitagu/internal/config"
	"github.com/microsoft/gitagu/internal/metrics"
)

// Client is a rate-limited GitHub API client. Once constructed it is
// read-only and safe for concurrent use.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	rateLimiter   *rate.Limiter
	metrics       *metrics.Metrics
	config        *config.Config
	token         string
	authenticated bool
}

var (
	sharedMu sync.Mutex
	shared   = map[bool]*Client{}
)

// Shared returns the process-wide client for the configured authentication
// mode, constructing it lazily on first use. Authenticated and anonymous
// clients are cached separately and never mixed.
func Shared(cfg *config.Config, m *metrics.Metrics) (*Client, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if c, ok := shared[cfg.HasGitHubAuth()]; ok {
		return c, nil
	}

	c, err := NewClient(cfg, m)
	if err != nil {
		return nil, err
	}
	shared[c.authenticated] = c
	return c, nil
}

// NewClient creates a new GitHub API client. When no credentials are
// configured it falls back to an anonymous client, which is subject to
// much tighter upstream rate limits.
func NewClient(cfg *config.Config, m *metrics.Metrics) (*Client, error) {
	client := &Client{
		baseURL:     cfg.GitHubBaseURL,
		httpClient:  &http.Client{Timeout: cfg.GetFetchTimeout()},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.APIRateLimitThreshold), cfg.APIRateLimitThreshold),
		metrics:     m,
		config:      cfg,
	}

	if err := client.setupAuth(); err != nil {
		return nil, fmt.Errorf("failed to setup authentication: %w", err)
	}

	return client, nil
}

// setupAuth configures authentication for the GitHub client
func (c *Client) setupAuth() error {
	if c.config.GitHubToken != "" {
		// Use Personal Access Token
		c.token = c.config.GitHubToken
		c.authenticated = true
		return nil
	}

	if c.config.HasGitHubApp() {
		// Use GitHub App authentication
		token, err := c.generateInstallationToken()
		if err != nil {
			return fmt.Errorf("failed to generate installation token: %w", err)
		}
		c.token = token
		c.authenticated = true
		return nil
	}

	logger.Warn("no GitHub credentials configured, using anonymous client with rate limits")
	return nil
}

// generateInstallationToken generates a GitHub App installation token
func (c *Client) generateInstallationToken() (string, error) {
	jwtToken, err := c.generateAppJWT()
	if err != nil {
		return "", fmt.Errorf("failed to generate app JWT: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", c.baseURL, c.config.GitHubInstallID)
	req, err := http.NewRequest("POST", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to get installation token: %s", string(body))
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	return tokenResp.Token, nil
}

// generateAppJWT generates a JWT for GitHub App authentication
func (c *Client) generateAppJWT() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(10 * time.Minute).Unix(),
		"iss": c.config.GitHubAppID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.config.GitHubAppKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	return token.SignedString(key)
}

// getJSON performs a GET against an API endpoint and decodes the response
// into out. A 404 maps to ErrNotFound; any other non-2xx status becomes an
// UpstreamError.
func (c *Client) getJSON(ctx context.Context, endpoint, url string, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	return c.makeRequestWithRetry(ctx, "GET", url, nil, func(resp *http.Response) error {
		c.metrics.RecordGitHubAPICall(endpoint, strconv.Itoa(resp.StatusCode))

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(resp.Body)
			return &UpstreamError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(body)}
		}

		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// postJSON performs a POST against an API endpoint, optionally sending body
// and decoding the response into out when it is non-nil
func (c *Client) postJSON(ctx context.Context, endpoint, url string, body []byte, wantStatus int, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	return c.makeRequestWithRetry(ctx, "POST", url, body, func(resp *http.Response) error {
		c.metrics.RecordGitHubAPICall(endpoint, strconv.Itoa(resp.StatusCode))

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode != wantStatus:
			respBody, _ := io.ReadAll(resp.Body)
			return &UpstreamError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(respBody)}
		}

		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// makeRequestWithRetry makes an HTTP request with retry logic. Server
// errors and 429s are retried with exponential backoff; client errors are
// returned immediately. The body is taken as bytes so every attempt sends
// a fresh reader; a shared io.Reader would be drained by the first attempt.
func (c *Client) makeRequestWithRetry(ctx context.Context, method, url string, body []byte, handler func(*http.Response) error) error {
	var lastErr error
	backoff := c.config.GetRetryBackoffBase()

	for attempt := 0; attempt <= c.config.RetryMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		c.updateRateLimitMetrics(resp)

		err = handler(resp)
		resp.Body.Close()

		if err == nil {
			return nil
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = err
			continue
		}

		// Don't retry for client errors
		return err
	}

	return fmt.Errorf("max retries exceeded, last error: %w", lastErr)
}

// setHeaders sets the required headers for GitHub API requests
func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "gitagu-backend/1.0")
}

// updateRateLimitMetrics updates rate limit metrics from response headers
func (c *Client) updateRateLimitMetrics(resp *http.Response) {
	if limitStr := resp.Header.Get("X-RateLimit-Limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			if remainingStr := resp.Header.Get("X-RateLimit-Remaining"); remainingStr != "" {
				if remaining, err := strconv.Atoi(remainingStr); err == nil {
					c.metrics.UpdateGitHubRateLimit(limit-remaining, limit)
				}
			}
		}
	}
}

// decodeContent decodes a contents-API payload, honoring its encoding field
func decodeContent(content, encoding string) (string, error) {
	if encoding != "base64" {
		return content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(stripNewlines(content))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return string(decoded), nil
}

// stripNewlines removes the line breaks GitHub inserts into base64 payloads
func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
