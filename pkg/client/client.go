// Package client provides the HTTP transport for the ID mapping service:
// rate limiting, bounded retry with exponential backoff, and error
// classification.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/idmapping-client/pkg/logging"
	"github.com/Sternrassler/idmapping-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idmap_requests_total",
		Help: "Total service requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "idmap_request_duration_seconds",
		Help:    "Service request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idmap_errors_total",
		Help: "Total service errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public REST endpoint.
const DefaultBaseURL = "https://rest.uniprot.org"

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (except 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 500/502/503/504.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client is the HTTP transport shared by every pipeline. It is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the REST API, e.g. "https://rest.uniprot.org".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP call. Keeps a hung service from blocking a poll forever.
	Timeout time.Duration

	// Retry
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Rate limiting (requests per second; <= 0 disables)
	RateLimit float64
	RateBurst int

	// Transport allows injecting a custom round tripper (tests, proxies).
	Transport http.RoundTripper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	retry := DefaultRetryConfig()
	return Config{
		BaseURL:           DefaultBaseURL,
		UserAgent:         "idmapping-client/0.1.0",
		Timeout:           30 * time.Second,
		MaxRetries:        retry.MaxAttempts - 1,
		InitialBackoff:    retry.InitialBackoff,
		MaxBackoff:        retry.MaxBackoff,
		BackoffMultiplier: retry.BackoffMultiplier,
		RateLimit:         10,
		RateBurst:         5,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("idmap-client")

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: ratelimit.NewLimiter(cfg.RateLimit, cfg.RateBurst, logger),
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}, nil
}

func (c *Client) retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       c.config.MaxRetries + 1,
		InitialBackoff:    c.config.InitialBackoff,
		MaxBackoff:        c.config.MaxBackoff,
		BackoffMultiplier: c.config.BackoffMultiplier,
	}
}

// URL resolves an API path against the base URL.
func (c *Client) URL(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String()
}

// Resolve turns a possibly relative URL returned by the service into an
// absolute one.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// Do performs an HTTP request with rate limiting and retry. Any non-2xx final
// status is returned as a *ServiceError and the response body is closed. On
// success the caller owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)

	var resp *http.Response
	err := retryWithBackoff(ctx, c.retryConfig(), c.logger, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &CancelledError{Err: err}
		}

		attemptReq := req
		if attempt > 1 {
			attemptReq = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return fmt.Errorf("replay request body: %w", err)
				}
				attemptReq.Body = body
			}
		}

		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("method", req.Method).
			Int("attempt", attempt).
			Msg("Executing request")

		r, err := c.httpClient.Do(attemptReq)
		if err != nil {
			if ctx.Err() != nil {
				return &CancelledError{Err: ctx.Err()}
			}
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return &attemptError{
				class: ErrorClassNetwork,
				err: &ServiceError{
					ErrorClass: ErrorClassNetwork,
					Message:    "request failed",
					Err:        err,
				},
			}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			resp = r
			return nil
		}

		class := classifyStatus(r.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		svcErr := &ServiceError{
			StatusCode: r.StatusCode,
			ErrorClass: class,
			Message:    readErrorMessage(r),
		}
		r.Body.Close()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", r.StatusCode).
			Str("error_class", string(class)).
			Msg("Service request error")

		var retryAfter time.Duration
		if class == ErrorClassRateLimit || r.StatusCode == http.StatusServiceUnavailable {
			retryAfter = ratelimit.ParseRetryAfter(r.Header, time.Now())
			c.limiter.Backoff(retryAfter)
		}
		return &attemptError{class: class, retryAfter: retryAfter, err: svcErr}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Get performs a GET request against an absolute URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// GetJSON performs a GET request and decodes a JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, v)
}

// PostForm posts url-encoded form values and decodes a JSON body into v.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, v)
}

func (c *Client) doJSON(req *http.Request, v any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &ProtocolError{
			Op:     req.Method + " " + endpointLabel(req.URL.Path),
			Detail: "invalid JSON body",
			Err:    err,
		}
	}
	return nil
}

// Limiter returns the shared rate limiter.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// classifyStatus categorizes a non-2xx status code.
func classifyStatus(status int) ErrorClass {
	switch status {
	case http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// readErrorMessage extracts the service's error message. The REST API answers
// errors with {"url": ..., "messages": ["..."]}.
func readErrorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	var payload struct {
		Messages []string `json:"messages"`
	}
	if json.Unmarshal(body, &payload) == nil && len(payload.Messages) > 0 {
		return strings.Join(payload.Messages, "; ")
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}

// endpointLabel collapses job IDs out of a path so metric cardinality stays
// bounded: /idmapping/status/abc123 -> /idmapping/status.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "idmapping" {
		switch parts[1] {
		case "run", "status", "details":
			return "/idmapping/" + parts[1]
		}
		if len(parts) >= 3 && parts[len(parts)-1] != "results" {
			return "/" + strings.Join(parts[:len(parts)-1], "/")
		}
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}
