// Package fidoo is the read capability for the Fidoo expense API.
package fidoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.fidoo.com/v2"
	DemoBaseURL    = "https://api-demo.fidoo.com/v2"

	MaxPageSize     = 100
	DefaultPageSize = 50

	// DailyRequestQuota is the API's documented per-day request budget.
	DailyRequestQuota = 6000

	userInfoEndpoint = "status/user-info"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// RequestsPerSecond <= 0 disables client-side throttling.
	RequestsPerSecond float64
	Burst             int

	DailyQuota int

	HTTPClient *http.Client
}

// DefaultConfig returns the production defaults without credentials.
func DefaultConfig() Config {
	return Config{
		BaseURL:              DefaultBaseURL,
		Timeout:              30 * time.Second,
		MaxRetries:           3,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     30 * time.Second,
		RequestsPerSecond:    5,
		Burst:                5,
		DailyQuota:           DailyRequestQuota,
	}
}

// ReadRequest is one page request against a list endpoint.
type ReadRequest struct {
	Endpoint    string
	Limit       int
	OffsetToken string
	Filters     map[string]any
}

// Client calls the Fidoo API. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	quotaDay string
	requests int
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewClient: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = time.Second
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = 30 * time.Second
	}
	if cfg.DailyQuota <= 0 {
		cfg.DailyQuota = DailyRequestQuota
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
	}, nil
}

// Read fetches one page from a list endpoint.
func (c *Client) Read(ctx context.Context, req ReadRequest) (*Page, error) {
	limit := req.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, &Error{
			Kind:     ErrValidation,
			Endpoint: req.Endpoint,
			Message:  fmt.Sprintf("limit must be between 1 and %d (got %d)", MaxPageSize, limit),
		}
	}

	body := make(map[string]any, len(req.Filters)+2)
	for k, v := range req.Filters {
		body[k] = v
	}
	body["limit"] = limit
	if req.OffsetToken != "" {
		body["offsetToken"] = req.OffsetToken
	}

	data, err := c.do(ctx, http.MethodPost, req.Endpoint, body)
	if err != nil {
		return nil, err
	}

	page, err := parsePage(data)
	if err != nil {
		return nil, fmt.Errorf("Read %s: %w", req.Endpoint, err)
	}
	return page, nil
}

// ValidateConnection checks the credentials against the user-info endpoint.
func (c *Client) ValidateConnection(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, userInfoEndpoint, nil); err != nil {
		return fmt.Errorf("ValidateConnection: %w", err)
	}
	return nil
}

// RequestsToday returns the number of requests sent since midnight UTC.
func (c *Client) RequestsToday() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quotaDay != time.Now().UTC().Format(time.DateOnly) {
		return 0
	}
	return c.requests
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request for %s: %w", endpoint, err)
		}
	}

	log := logger.FromContext(ctx)
	b := &retryAfterBackOff{BackOff: c.newBackOff()}

	var out []byte
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		data, err := c.send(ctx, method, endpoint, payload)
		if err == nil {
			out = data
			return nil
		}
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Retryable() {
			b.hint = apiErr.RetryAfter
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		reason := "connection"
		if errors.Is(err, ErrRateLimited) {
			reason = "rate_limit"
		}
		metrics.APIRetriesTotal.WithLabelValues(reason).Inc()
		log.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Dur("wait", wait).
			Msg("Retrying Fidoo API request")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", endpoint, err)
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.countRequest(ctx)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, &Error{Kind: ErrConnection, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrConnection, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromResponse(endpoint, resp, data)
	}
	return data, nil
}

func (c *Client) url(endpoint string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// countRequest tracks the daily quota and warns as it runs out.
func (c *Client) countRequest(ctx context.Context) {
	c.mu.Lock()
	day := time.Now().UTC().Format(time.DateOnly)
	if day != c.quotaDay {
		c.quotaDay = day
		c.requests = 0
	}
	c.requests++
	n := c.requests
	c.mu.Unlock()

	if n == c.cfg.DailyQuota*9/10 || n == c.cfg.DailyQuota {
		log := logger.FromContext(ctx)
		log.Warn().
			Int("requests_today", n).
			Int("daily_quota", c.cfg.DailyQuota).
			Msg("Approaching Fidoo API daily request quota")
	}
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitialInterval
	b.MaxInterval = c.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0
	return b
}

// retryAfterBackOff never waits less than the server's last Retry-After hint.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}
