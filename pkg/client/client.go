// Package client provides the ad server HTTP client with quota gating,
// page caching, retries and error classification.
//
// Authentication is not handled here: pass an *http.Client whose transport
// adds credentials (for example an OAuth2 transport) in Config.HTTPClient.
package client

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
	"time"

	"github.com/Sternrassler/adserver-client/pkg/cache"
	"github.com/Sternrassler/adserver-client/pkg/logging"
	"github.com/Sternrassler/adserver-client/pkg/ratelimit"
	"github.com/Sternrassler/adserver-client/pkg/statement"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultVersion is the ad server API version used when Config.Version is empty.
const DefaultVersion = "v201505"

// Request headers sent with every call.
const (
	HeaderNetworkCode = "X-Network-Code"
	HeaderRequestID   = "X-Request-Id"
)

// Prometheus metrics for ad server client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adserver_requests_total",
		Help: "Total ad server requests by service, method and status",
	}, []string{"service", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adserver_request_duration_seconds",
		Help:    "Ad server request duration in seconds by service and method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"service", "method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adserver_errors_total",
		Help: "Total ad server errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adserver_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adserver_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adserver_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Client is the ad server client.
type Client struct {
	httpClient *http.Client
	quota      *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis client for page caching and shared quota state (optional).
	// Without it pages are not cached and quota state is process-local.
	Redis *redis.Client

	// BaseURL of the ad server API, e.g. "https://ads.example.com/apis".
	BaseURL string

	// Version is the API version path segment.
	Version string

	// NetworkCode selects the ad server network (REQUIRED).
	NetworkCode string

	// ApplicationName is sent as User-Agent (REQUIRED).
	ApplicationName string

	// HTTPClient performs the requests and carries credentials.
	HTTPClient *http.Client

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration

	// PageCacheTTL is how long query pages are cached; 0 disables caching.
	PageCacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, networkCode, applicationName string) Config {
	return Config{
		BaseURL:         baseURL,
		Version:         DefaultVersion,
		NetworkCode:     networkCode,
		ApplicationName: applicationName,
		MaxRetries:      3,
		InitialBackoff:  1 * time.Second,
		PageCacheTTL:    30 * time.Second,
	}
}

// New creates a new ad server client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.NetworkCode == "" {
		return nil, fmt.Errorf("network code is required")
	}

	if cfg.ApplicationName == "" {
		return nil, fmt.Errorf("application name is required")
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	logger := logging.NewLogger(logging.ComponentClient)

	c := &Client{
		httpClient: httpClient,
		quota:      ratelimit.NewTracker(cfg.Redis, logger),
		config:     cfg,
		logger:     logger,
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}
	return c, nil
}

// envelope is the response body of every call.
type envelope struct {
	Rval  json.RawMessage `json:"rval"`
	Error *fault          `json:"error"`
}

type fault struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Call invokes service.method with req as the JSON body and decodes the
// returned value into out (which may be nil).
func (c *Client) Call(ctx context.Context, service, method string, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s.%s request: %w", service, method, err)
	}

	raw, err := c.do(ctx, service, method, body)
	if err != nil {
		return err
	}
	return decode(service, method, raw, out)
}

// Query invokes a read-only "...ByStatement" method. When Redis and a
// PageCacheTTL are configured, responses are cached per statement.
func (c *Client) Query(ctx context.Context, service, method string, stmt statement.Statement, out any) error {
	body, err := json.Marshal(struct {
		Statement statement.Statement `json:"statement"`
	}{stmt})
	if err != nil {
		return fmt.Errorf("encode %s.%s request: %w", service, method, err)
	}

	if c.cache == nil || c.config.PageCacheTTL <= 0 {
		raw, err := c.do(ctx, service, method, body)
		if err != nil {
			return err
		}
		return decode(service, method, raw, out)
	}

	gen, err := c.cache.Generation(ctx, c.config.NetworkCode, service)
	if err != nil {
		c.logger.Warn().Err(err).Str("service", service).Msg("Cache generation lookup failed")
	}
	key := cache.Key{
		NetworkCode: c.config.NetworkCode,
		Service:     service,
		Method:      method,
		Statement:   stmt,
		Generation:  gen,
	}

	entry, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug().Str("service", service).Str("method", method).Msg("Page cache hit")
		return decode(service, method, entry.Data, out)
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn().Err(err).Str("service", service).Msg("Cache get error")
	}

	raw, err := c.do(ctx, service, method, body)
	if err != nil {
		return err
	}

	if err := c.cache.Set(ctx, key, cache.NewEntry(raw, c.config.PageCacheTTL)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache page")
	}
	return decode(service, method, raw, out)
}

// Invalidate discards cached pages of service. Call it after a mutation.
func (c *Client) Invalidate(ctx context.Context, service string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Invalidate(ctx, c.config.NetworkCode, service)
}

// do sends one call with quota gating and retries and returns the raw rval.
func (c *Client) do(ctx context.Context, service, method string, body []byte) (json.RawMessage, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(service, method).Observe(time.Since(startTime).Seconds())
	}()

	allowed, err := c.quota.ShouldAllowRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !allowed {
		requestsTotal.WithLabelValues(service, method, "quota_blocked").Inc()
		return nil, ErrQuotaBlocked
	}

	url := fmt.Sprintf("%s/%s/%s/%s", c.config.BaseURL, c.config.Version, service, method)
	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("service", service).
		Str("method", method).
		Str("request_id", requestID).
		Logger()

	var rval json.RawMessage

	retryErr := retryWithBackoff(ctx, retryPolicy{
		maxAttempts:    c.config.MaxRetries + 1,
		initialBackoff: c.config.InitialBackoff,
	}, func() (ErrorClass, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.config.ApplicationName)
		req.Header.Set(HeaderNetworkCode, c.config.NetworkCode)
		req.Header.Set(HeaderRequestID, requestID)

		logger.Debug().Msg("Executing ad server request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Error().Err(err).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(service, method, "network_error").Inc()
			return ErrorClassNetwork, &APIError{ErrorClass: ErrorClassNetwork, Reason: "request failed", Err: err}
		}
		defer resp.Body.Close()

		if err := c.quota.UpdateFromHeaders(ctx, resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update quota from headers")
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return ErrorClassNetwork, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Reason: "read body", Err: err}
		}

		var env envelope
		decodeErr := json.Unmarshal(data, &env)

		if resp.StatusCode >= 400 || (decodeErr == nil && env.Error != nil) {
			apiErr := &APIError{StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
			if decodeErr == nil && env.Error != nil {
				apiErr.Type = env.Error.Type
				apiErr.Reason = env.Error.Reason
			}
			apiErr.ErrorClass = classify(resp.StatusCode, apiErr.Type)

			errorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
			requestsTotal.WithLabelValues(service, method, strconv.Itoa(resp.StatusCode)).Inc()

			logger.Warn().
				Int("status", resp.StatusCode).
				Str("error_class", string(apiErr.ErrorClass)).
				Str("fault", apiErr.Type).
				Msg("Ad server request error")
			return apiErr.ErrorClass, apiErr
		}

		if decodeErr != nil {
			requestsTotal.WithLabelValues(service, method, "decode_error").Inc()
			return "", fmt.Errorf("decode %s.%s envelope: %w", service, method, decodeErr)
		}

		requestsTotal.WithLabelValues(service, method, strconv.Itoa(resp.StatusCode)).Inc()
		rval = env.Rval
		return "", nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	logger.Debug().Dur("duration", time.Since(startTime)).Msg("Ad server request complete")
	return rval, nil
}

func decode(service, method string, raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s.%s response: %w", service, method, err)
	}
	return nil
}

// NetworkCode returns the configured network code.
func (c *Client) NetworkCode() string {
	return c.config.NetworkCode
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

// QuotaTracker returns the quota tracker (for testing).
func (c *Client) QuotaTracker() *ratelimit.Tracker {
	return c.quota
}
