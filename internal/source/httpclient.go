package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/obentoo/external-updater/internal/common/logger"
	"github.com/zeebo/blake3"
)

// Error variables for HTTP client errors
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have failed
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrRequestTimeout is returned when a request times out
	ErrRequestTimeout = errors.New("request timeout")
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt (default: 0)
	MaxRetries int
	// BaseDelay is the initial delay before first retry (default: 1s)
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 4s)
	MaxDelay time.Duration
	// Timeout is the timeout for each individual request (default: 30s)
	Timeout time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
// A failed request is not retried unless MaxRetries is raised; retries
// then back off exponentially with delays of 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 0,
		BaseDelay:  1 * time.Second,
		MaxDelay:   4 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// Client wraps an HTTP client with retry logic and the headers upstream
// hosts expect.
type Client struct {
	client *http.Client
	config RetryConfig
	// delayFunc allows overriding the delay function for testing
	delayFunc func(time.Duration)
	userAgent string
	// githubToken is sent to the GitHub API only
	githubToken  string
	githubAPIURL string
}

// NewClient creates a new HTTP client using the default retry configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultRetryConfig())
}

// NewClientWithConfig creates a new HTTP client with custom retry configuration.
func NewClientWithConfig(config RetryConfig) *Client {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Client{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		config:       config,
		delayFunc:    time.Sleep,
		githubAPIURL: "https://api.github.com",
	}
}

// SetHTTPClient sets a custom underlying HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.client = client
}

// SetDelayFunc sets a custom delay function (useful for testing).
func (c *Client) SetDelayFunc(fn func(time.Duration)) {
	c.delayFunc = fn
}

// SetUserAgent sets the User-Agent header sent with every request.
func (c *Client) SetUserAgent(ua string) {
	c.userAgent = ua
}

// SetGitHubToken sets the GitHub API token. It is only sent to requests
// below apiURL.
func (c *Client) SetGitHubToken(token, apiURL string) {
	c.githubToken = token
	if apiURL != "" {
		c.githubAPIURL = strings.TrimSuffix(apiURL, "/")
	}
}

// Config returns the current retry configuration.
func (c *Client) Config() RetryConfig {
	return c.config
}

// Get performs an HTTP GET request with retry logic and context support.
// headers are applied after the client defaults.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.githubToken != "" && strings.HasPrefix(rawURL, c.githubAPIURL+"/") {
		req.Header.Set("Authorization", "Bearer "+c.githubToken)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.do(ctx, req)
}

// do executes an HTTP request with retry logic.
// It retries on network errors, 5xx server errors and 429 with exponential backoff.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Apply delay before retry (not on first attempt)
		if attempt > 0 {
			delay := c.calculateDelay(attempt)
			logger.Debug("retrying %s in %v (attempt %d)", req.URL, delay, attempt+1)
			c.delayFunc(delay)
		}

		logger.Debug("GET %s", req.URL)
		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if isTimeoutError(err) {
				lastErr = fmt.Errorf("%w: %v", ErrRequestTimeout, err)
			}
			continue
		}

		if c.shouldRetry(resp.StatusCode) && attempt < c.config.MaxRetries {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			continue
		}

		// Success or an error the caller classifies by status
		return resp, nil
	}

	if c.config.MaxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// calculateDelay calculates the delay for a given retry attempt.
// Uses exponential backoff: delay = baseDelay * 2^(attempt-1)
func (c *Client) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := 1 << (attempt - 1)
	delay := c.config.BaseDelay * time.Duration(multiplier)

	if delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}

	return delay
}

// shouldRetry determines if a request should be retried based on status code.
func (c *Client) shouldRetry(statusCode int) bool {
	if statusCode >= 500 && statusCode < 600 {
		return true
	}
	return statusCode == http.StatusTooManyRequests
}

// isTimeoutError checks if an error is a timeout error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	type timeoutError interface {
		Timeout() bool
	}
	var te timeoutError
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

// Download fetches rawURL into dir and returns the path of the written
// file. The file is named after the last path element of the URL, or the
// Content-Disposition filename when the server provides one.
func (c *Client) Download(ctx context.Context, rawURL, dir string) (string, error) {
	resp, err := c.Get(ctx, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetchFailed, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: status %d", ErrFetchFailed, rawURL, resp.StatusCode)
	}

	name := downloadName(rawURL, resp.Header.Get("Content-Disposition"))
	target := filepath.Join(dir, name)

	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	digest := blake3.New()
	n, err := io.Copy(io.MultiWriter(out, digest), resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetchFailed, rawURL, err)
	}

	logger.Debug("downloaded %s (%s, blake3 %x) to %s", rawURL, humanize.Bytes(uint64(n)), digest.Sum(nil), target)
	return target, nil
}

// downloadName picks a local file name for a download
func downloadName(rawURL, disposition string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
				return name
			}
		}
	}

	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	return name
}
