// Package client provides the OilPriceAPI HTTP client: a single request
// engine with timeout, retry and backoff, typed errors, and response
// normalization, plus the price, commodity, diesel and alert services
// built on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/oilpriceapi-go/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Prometheus metrics for API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilpriceapi_requests_total",
		Help: "Total OilPriceAPI HTTP attempts by route and status",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oilpriceapi_request_duration_seconds",
		Help:    "Duration of a full request including retries, by route",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 90},
	}, []string{"route"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilpriceapi_errors_total",
		Help: "Total failed attempts by error code",
	}, []string{"code"})
)

// Defaults applied by DefaultConfig and New.
const (
	DefaultBaseURL       = "https://api.oilpriceapi.com"
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 1 * time.Second
	DefaultTimeout       = 90 * time.Second
	DefaultMaxRetryAfter = 5 * time.Minute
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 10 << 20

// Doer executes a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// QuotaRecorder receives the headers of every API response.
// *ratelimit.Tracker satisfies it.
type QuotaRecorder interface {
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// Config holds the client configuration. It is copied by New and never
// modified afterwards.
type Config struct {
	// APIKey is sent as a bearer token. Required.
	APIKey string

	// BaseURL of the API (default: https://api.oilpriceapi.com).
	BaseURL string

	// MaxRetries is the number of additional attempts after the first.
	// Zero disables retries.
	MaxRetries int

	// RetryDelay is the base backoff delay (default: 1s).
	RetryDelay time.Duration

	// RetryStrategy controls backoff growth (default: exponential).
	RetryStrategy RetryStrategy

	// Timeout bounds each attempt, not the whole call (default: 90s).
	Timeout time.Duration

	// MaxRetryAfter caps a server-specified Retry-After wait (default: 5m).
	MaxRetryAfter time.Duration

	// Debug enables debug log lines for every attempt.
	Debug bool

	// Logger overrides the component logger derived from the global zerolog logger.
	Logger *zerolog.Logger

	// HTTPClient replaces the transport (for testing or custom TLS).
	HTTPClient Doer

	// Sleeper replaces the wait used for backoff and Retry-After.
	Sleeper Sleeper

	// Quota, when set, is fed the headers of every response.
	Quota QuotaRecorder

	// RequestsPerSecond paces attempts across all calls of this client.
	// Zero disables pacing.
	RequestsPerSecond float64

	// Tracing wraps the default transport with OpenTelemetry instrumentation.
	// Ignored when HTTPClient is set.
	Tracing bool

	// UserAgentSuffix is appended to the SDK User-Agent.
	UserAgentSuffix string
}

// DefaultConfig returns the default configuration for apiKey.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:        apiKey,
		BaseURL:       DefaultBaseURL,
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		RetryStrategy: StrategyExponential,
		Timeout:       DefaultTimeout,
		MaxRetryAfter: DefaultMaxRetryAfter,
	}
}

// Client is the OilPriceAPI client. It is safe for concurrent use.
type Client struct {
	httpClient Doer
	sleep      Sleeper
	limiter    *rate.Limiter
	quota      QuotaRecorder
	config     Config
	logger     zerolog.Logger
	userAgent  string

	Prices      *PriceService
	Commodities *CommodityService
	Diesel      *DieselService
	Alerts      *AlertService
}

// New validates cfg and creates a client. It never performs network I/O.
func New(cfg Config) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidConfig, cfg.BaseURL)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must be >= 0 (got %d)", ErrInvalidConfig, cfg.MaxRetries)
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("%w: retry delay must be > 0 (got %s)", ErrInvalidConfig, cfg.RetryDelay)
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout must be > 0 (got %s)", ErrInvalidConfig, cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetryAfter < 0 {
		return nil, fmt.Errorf("%w: max retry-after must be > 0 (got %s)", ErrInvalidConfig, cfg.MaxRetryAfter)
	}
	if cfg.MaxRetryAfter == 0 {
		cfg.MaxRetryAfter = DefaultMaxRetryAfter
	}
	if cfg.RetryStrategy == "" {
		cfg.RetryStrategy = StrategyExponential
	}
	if !cfg.RetryStrategy.Valid() {
		return nil, fmt.Errorf("%w: unknown retry strategy %q", ErrInvalidConfig, cfg.RetryStrategy)
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("%w: requests per second must be >= 0", ErrInvalidConfig)
	}

	logger := logging.NewLogger(logging.ComponentClient)
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", logging.ComponentClient).Logger()
	}
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		var transport http.RoundTripper = http.DefaultTransport
		if cfg.Tracing {
			transport = otelhttp.NewTransport(transport)
		}
		// per-attempt timeouts come from the request context
		httpClient = &http.Client{Transport: transport}
	}

	sleep := cfg.Sleeper
	if sleep == nil {
		sleep = sleepContext
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	c := &Client{
		httpClient: httpClient,
		sleep:      sleep,
		limiter:    limiter,
		quota:      cfg.Quota,
		config:     cfg,
		logger:     logger,
		userAgent:  userAgent(cfg.UserAgentSuffix),
	}
	c.Prices = &PriceService{client: c}
	c.Commodities = &CommodityService{client: c}
	c.Diesel = &DieselService{client: c}
	c.Alerts = &AlertService{client: c}

	c.logger.Debug().
		Str("base_url", cfg.BaseURL).
		Int("max_retries", cfg.MaxRetries).
		Str("strategy", string(cfg.RetryStrategy)).
		Dur("timeout", cfg.Timeout).
		Msg("Client initialized")

	return c, nil
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Close releases idle connections held by the default transport.
func (c *Client) Close() error {
	if closer, ok := c.httpClient.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
	return nil
}

// request describes one logical API call.
type request struct {
	method string
	route  string // path template, used as metric label
	path   string
	query  url.Values
	body   []byte
}

func newRequest(method, route, path string) *request {
	return &request{method: method, route: route, path: path, query: url.Values{}}
}

// param sets a query parameter; empty values are omitted.
func (r *request) param(key, value string) *request {
	if value != "" {
		r.query.Set(key, value)
	}
	return r
}

func (r *request) jsonBody(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	r.body = b
	return nil
}

// buildURL joins the base URL and path and appends non-empty query values.
func (c *Client) buildURL(r *request) string {
	target := c.config.BaseURL + "/" + strings.TrimLeft(r.path, "/")
	q := url.Values{}
	for k, vs := range r.query {
		for _, v := range vs {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return target
}

// execute runs r through the attempt loop: up to MaxRetries+1 sequential
// attempts, each under its own timeout, with backoff or Retry-After waits in
// between. It returns the normalized payload or the terminal *Error.
func (c *Client) execute(ctx context.Context, r *request) (*Payload, error) {
	target := c.buildURL(r)
	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("request_id", requestID).
		Str("route", r.route).
		Logger()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(r.route).Observe(time.Since(start).Seconds())
	}()

	var lastErr *Error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelledError(err)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, cancelledError(fmt.Errorf("rate limiter: %w", err))
			}
		}

		logger.Debug().
			Str("method", r.method).
			Str("url", target).
			Int("attempt", attempt).
			Msg("Executing request")

		payload, apiErr := c.attempt(ctx, r, target, requestID, logger)
		if apiErr == nil {
			if attempt > 0 {
				logger.Debug().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return payload, nil
		}

		errorsTotal.WithLabelValues(apiErr.Code).Inc()
		lastErr = apiErr
		final := attempt == c.config.MaxRetries

		if apiErr.Kind == KindRateLimit && apiErr.hasRetryAfter && !final {
			if err := c.wait(ctx, apiErr, attempt, c.retryAfterWait(apiErr.RetryAfter), "retry_after"); err != nil {
				return nil, err
			}
			continue
		}

		if !IsRetryable(apiErr) {
			logger.Debug().
				Str("code", apiErr.Code).
				Int("status", apiErr.StatusCode).
				Msg("Request failed with non-retryable error")
			return nil, apiErr
		}
		if final {
			break
		}

		delay := Backoff(attempt, c.config.RetryStrategy, c.config.RetryDelay)
		if err := c.wait(ctx, apiErr, attempt, delay, "backoff"); err != nil {
			return nil, err
		}
	}

	retryExhaustedTotal.WithLabelValues(lastErr.Code).Inc()
	logger.Warn().
		Str("code", lastErr.Code).
		Int("max_retries", c.config.MaxRetries).
		Msg("Retry attempts exhausted")

	return nil, lastErr
}

// attempt performs one HTTP exchange under the per-attempt timeout. The
// timer is released on every return path.
func (c *Client) attempt(ctx context.Context, r *request, target, requestID string, logger zerolog.Logger) (*Payload, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, r.method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindGeneric, Message: "create request", Code: CodeHTTP, Err: err}
	}
	c.setHeaders(req, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(r.route, "transport_error").Inc()
		return nil, c.transportError(ctx, attemptCtx, err, logger)
	}
	defer resp.Body.Close()

	if c.quota != nil {
		if err := c.quota.UpdateFromHeaders(ctx, resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update quota from headers")
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		requestsTotal.WithLabelValues(r.route, "transport_error").Inc()
		return nil, c.transportError(ctx, attemptCtx, err, logger)
	}
	requestsTotal.WithLabelValues(r.route, strconv.Itoa(resp.StatusCode)).Inc()

	logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Msg("Response received")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		payload, nerr := normalize(data)
		if nerr != nil {
			nerr.StatusCode = resp.StatusCode
			return nil, nerr
		}
		logger.Debug().
			Str("shape", string(payload.Shape)).
			Int("items", len(payload.Items)).
			Msg("Response normalized")
		return payload, nil
	}

	var retryAfter time.Duration
	var hasRetryAfter bool
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, hasRetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	apiErr := errorForStatus(resp.StatusCode, errorMessage(resp.StatusCode, data), retryAfter)
	apiErr.hasRetryAfter = hasRetryAfter && apiErr.Kind == KindRateLimit

	logger.Debug().
		Int("status", resp.StatusCode).
		Str("code", apiErr.Code).
		Dur("retry_after", retryAfter).
		Msg("Request error")

	return nil, apiErr
}

// transportError classifies a failure that produced no HTTP status.
func (c *Client) transportError(ctx, attemptCtx context.Context, err error, logger zerolog.Logger) *Error {
	switch {
	case ctx.Err() != nil:
		return cancelledError(ctx.Err())
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		logger.Debug().Dur("timeout", c.config.Timeout).Msg("Attempt timed out")
		return timeoutError(c.config.Timeout, err)
	default:
		logger.Debug().Err(err).Msg("HTTP request failed")
		return networkError(err)
	}
}

func (c *Client) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)
}

// maxDuration is the largest representable wait.
const maxDuration = time.Duration(math.MaxInt64)

// parseRetryAfter reads an integer seconds value. ok is false for absent,
// malformed and negative values. Values too large for a time.Duration
// saturate to maxDuration.
func parseRetryAfter(value string) (d time.Duration, ok bool) {
	value = strings.TrimSpace(value)
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) && !strings.HasPrefix(value, "-") {
			return maxDuration, true
		}
		return 0, false
	}
	if seconds < 0 {
		return 0, false
	}
	if seconds > int64(maxDuration/time.Second) {
		return maxDuration, true
	}
	return time.Duration(seconds) * time.Second, true
}

// errorMessage extracts a human message from an error body, falling back
// to "HTTP <status>: <status text>".
func errorMessage(status int, body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"message", "error"} {
			if msg := stringField(fields[key]); msg != "" {
				return msg
			}
		}
		var list []string
		if err := json.Unmarshal(fields["errors"], &list); err == nil && len(list) > 0 {
			if msg := strings.TrimSpace(list[0]); msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
