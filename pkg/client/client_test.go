package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/oilpriceapi-go/internal/testutil"
	"github.com/Sternrassler/oilpriceapi-go/pkg/ratelimit"
	"github.com/alicebob/miniredis/v2"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError error
	}{
		{
			name:   "valid config",
			config: DefaultConfig("key"),
		},
		{
			name:   "zero values use defaults",
			config: Config{APIKey: "key"},
		},
		{
			name:        "empty api key",
			config:      DefaultConfig(""),
			expectError: ErrMissingAPIKey,
		},
		{
			name:        "whitespace api key",
			config:      DefaultConfig("   "),
			expectError: ErrMissingAPIKey,
		},
		{
			name:        "relative base url",
			config:      Config{APIKey: "key", BaseURL: "api.oilpriceapi.com"},
			expectError: ErrInvalidConfig,
		},
		{
			name:        "negative retries",
			config:      Config{APIKey: "key", MaxRetries: -1},
			expectError: ErrInvalidConfig,
		},
		{
			name:        "negative timeout",
			config:      Config{APIKey: "key", Timeout: -time.Second},
			expectError: ErrInvalidConfig,
		},
		{
			name:        "negative retry delay",
			config:      Config{APIKey: "key", RetryDelay: -time.Second},
			expectError: ErrInvalidConfig,
		},
		{
			name:        "unknown strategy",
			config:      Config{APIKey: "key", RetryStrategy: "random"},
			expectError: ErrInvalidConfig,
		},
		{
			name:        "negative rate",
			config:      Config{APIKey: "key", RequestsPerSecond: -1},
			expectError: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("New() error = %v, want %v", err, tt.expectError)
				}
				if c != nil {
					t.Error("New() returned a client alongside an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error = %v", err)
			}
			c.Close()
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("key")

	if cfg.BaseURL != "https://api.oilpriceapi.com" {
		t.Errorf("BaseURL = %q, want https://api.oilpriceapi.com", cfg.BaseURL)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.RetryDelay)
	}
	if cfg.RetryStrategy != StrategyExponential {
		t.Errorf("RetryStrategy = %v, want exponential", cfg.RetryStrategy)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", cfg.Timeout)
	}
	if cfg.MaxRetryAfter != 5*time.Minute {
		t.Errorf("MaxRetryAfter = %v, want 5m", cfg.MaxRetryAfter)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	c, err := New(Config{APIKey: "  key  ", BaseURL: "https://example.com/"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	cfg := c.Config()
	if cfg.APIKey != "key" {
		t.Errorf("APIKey = %q, want trimmed key", cfg.APIKey)
	}
	if cfg.BaseURL != "https://example.com" {
		t.Errorf("BaseURL = %q, want trailing slash removed", cfg.BaseURL)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0 for an explicit zero", cfg.MaxRetries)
	}
	if cfg.Timeout != DefaultTimeout || cfg.RetryDelay != DefaultRetryDelay || cfg.MaxRetryAfter != DefaultMaxRetryAfter {
		t.Errorf("durations not defaulted: %+v", cfg)
	}
	if cfg.RetryStrategy != StrategyExponential {
		t.Errorf("RetryStrategy = %q, want exponential", cfg.RetryStrategy)
	}
}

func TestNew_OptionalTransport(t *testing.T) {
	c, err := New(Config{APIKey: "key", Tracing: true, RequestsPerSecond: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	hc, ok := c.httpClient.(*http.Client)
	if !ok {
		t.Fatalf("httpClient = %T, want *http.Client", c.httpClient)
	}
	if _, ok := hc.Transport.(*otelhttp.Transport); !ok {
		t.Errorf("Transport = %T, want *otelhttp.Transport", hc.Transport)
	}
	if c.limiter == nil {
		t.Error("limiter not created for RequestsPerSecond > 0")
	}
}

func TestExecute_Headers(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/prices/latest", testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 78.45)))

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.UserAgentSuffix = "my-app/2.0" })

	if _, err := c.Prices.Latest(context.Background(), "WTI_USD"); err != nil {
		t.Fatalf("Latest() error = %v", err)
	}

	h := mock.LastRequest().Header
	if got := h.Get("Authorization"); got != "Bearer "+testAPIKey {
		t.Errorf("Authorization = %q, want bearer token", got)
	}
	if got := h.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := h.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want application/json", got)
	}
	ua := h.Get("User-Agent")
	if !strings.HasPrefix(ua, "oilpriceapi-go/"+Version+" go/") || !strings.HasSuffix(ua, " my-app/2.0") {
		t.Errorf("User-Agent = %q, want SDK identifier with suffix", ua)
	}
	if h.Get("X-Request-Id") == "" {
		t.Error("X-Request-Id not set")
	}
}

func TestExecute_NormalizesShapes(t *testing.T) {
	tests := []struct {
		name          string
		data          string
		expectedCodes []string
	}{
		{
			name:          "single price",
			data:          testutil.LatestPriceData("WTI_USD", 78.45),
			expectedCodes: []string{"WTI_USD"},
		},
		{
			name:          "price collection",
			data:          testutil.PriceListData("WTI_USD", "BRENT_CRUDE_USD", "NATURAL_GAS_USD"),
			expectedCodes: []string{"WTI_USD", "BRENT_CRUDE_USD", "NATURAL_GAS_USD"},
		},
		{
			name:          "empty collection",
			data:          `{"prices":[]}`,
			expectedCodes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetResponse("/v1/prices/latest", testutil.NewSuccessResponse(tt.data))

			c, _ := newTestClient(t, mock.URL(), nil)

			prices, err := c.Prices.Latest(context.Background(), "")
			if err != nil {
				t.Fatalf("Latest() error = %v", err)
			}
			if len(prices) != len(tt.expectedCodes) {
				t.Fatalf("len(prices) = %d, want %d", len(prices), len(tt.expectedCodes))
			}
			for i, code := range tt.expectedCodes {
				if prices[i].Code != code {
					t.Errorf("prices[%d].Code = %q, want %q", i, prices[i].Code, code)
				}
			}
		})
	}
}

func TestExecute_InvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing data", `{"status":"success"}`},
		{"null data", `{"status":"success","data":null}`},
		{"not json", `<html>ok</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetResponse("/v1/prices/latest", testutil.MockResponse{StatusCode: http.StatusOK, Body: tt.body})

			c, _ := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.MaxRetries = 3 })

			_, err := c.Prices.Latest(context.Background(), "")

			var apiErr *Error
			if !errors.As(err, &apiErr) || apiErr.Code != CodeInvalidResponse {
				t.Fatalf("error = %v, want %s", err, CodeInvalidResponse)
			}
			if apiErr.StatusCode != http.StatusOK {
				t.Errorf("StatusCode = %d, want 200", apiErr.StatusCode)
			}
			if got := mock.GetRequestCount(); got != 1 {
				t.Errorf("requests = %d, want 1 (malformed responses are final)", got)
			}
		})
	}
}

func TestExecute_Timeout(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetHanging("/v1/prices/latest")

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Timeout = 5 * time.Millisecond
		cfg.MaxRetries = 0
	})

	_, err := c.Prices.Latest(context.Background(), "WTI_USD")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want timeout error", err)
	}

	var apiErr *Error
	errors.As(err, &apiErr)
	if apiErr.Code != CodeTimeout {
		t.Errorf("Code = %q, want %q", apiErr.Code, CodeTimeout)
	}
	if !strings.Contains(apiErr.Message, "5") {
		t.Errorf("Message = %q, want the configured timeout", apiErr.Message)
	}
}

func TestExecute_TimeoutIsPerAttempt(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	slow := testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 70))
	slow.Delay = 5 * time.Second
	mock.SetSequence("/v1/prices/latest",
		slow,
		testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 70)),
	)

	c, sleeper := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
		cfg.MaxRetries = 1
	})

	prices, err := c.Prices.Latest(context.Background(), "WTI_USD")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(prices) != 1 {
		t.Errorf("len(prices) = %d, want 1", len(prices))
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if len(sleeper.Waits()) != 1 {
		t.Errorf("waits = %v, want one backoff after the timeout", sleeper.Waits())
	}

	// the fast response repeats, so the next call needs a single attempt
	mock.Reset()
	if _, err := c.Prices.Latest(context.Background(), "WTI_USD"); err != nil {
		t.Fatalf("second Latest() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests after reset = %d, want 1", got)
	}
}

func TestExecute_CallerDeadlineIsCancellation(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetHanging("/v1/prices/latest")

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Timeout = 10 * time.Second })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Prices.Latest(ctx, "")

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeCancelled {
		t.Fatalf("error = %v, want %s", err, CodeCancelled)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestExecute_NoDeduplication(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/prices/latest", testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 78.45)))

	c, _ := newTestClient(t, mock.URL(), nil)

	for i := 0; i < 2; i++ {
		if _, err := c.Prices.Latest(context.Background(), "WTI_USD"); err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}

	reqs := mock.Requests()
	if reqs[0].Header.Get("X-Request-Id") == reqs[1].Header.Get("X-Request-Id") {
		t.Error("two calls shared one request id")
	}
}

func TestExecute_ConcurrentCalls(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/prices/latest", testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 78.45)))

	c, _ := newTestClient(t, mock.URL(), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Prices.Latest(context.Background(), "WTI_USD"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Latest() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 10 {
		t.Errorf("requests = %d, want 10", got)
	}
}

// quotaSpy records the headers passed to UpdateFromHeaders.
type quotaSpy struct {
	mu      sync.Mutex
	headers []http.Header
	err     error
}

func (q *quotaSpy) UpdateFromHeaders(ctx context.Context, h http.Header) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.headers = append(q.headers, h)
	return q.err
}

func TestExecute_QuotaHook(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetSequence("/v1/prices/latest",
		testutil.NewServerErrorResponse(),
		testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 78.45)),
	)

	spy := &quotaSpy{err: errors.New("store down")}
	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.MaxRetries = 1
		cfg.Quota = spy
	})

	if _, err := c.Prices.Latest(context.Background(), "WTI_USD"); err != nil {
		t.Fatalf("Latest() error = %v (quota failures must not fail the call)", err)
	}
	if len(spy.headers) != 2 {
		t.Fatalf("quota hook calls = %d, want one per attempt", len(spy.headers))
	}
	if got := spy.headers[1].Get("X-RateLimit-Remaining"); got != "9999" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9999", got)
	}
}

func TestExecute_QuotaTracker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/prices/latest", testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 78.45)))

	tracker := ratelimit.NewTracker(rdb, ratelimit.KeyFingerprint(testAPIKey), zerolog.Nop())
	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Quota = tracker })

	if _, err := c.Prices.Latest(context.Background(), "WTI_USD"); err != nil {
		t.Fatalf("Latest() error = %v", err)
	}

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state == nil || state.Remaining != 9999 || state.Limit != 10000 {
		t.Errorf("quota state = %+v, want 9999/10000", state)
	}
}

func TestExecute_DebugLogging(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/prices/latest", testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 78.45)))

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Debug = true
		cfg.Logger = &logger
	})

	if _, err := c.Prices.Latest(context.Background(), "WTI_USD"); err != nil {
		t.Fatalf("Latest() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Executing request", "Response received", `"route":"/v1/prices/latest"`, `"request_id":`} {
		if !strings.Contains(out, want) {
			t.Errorf("debug log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, testAPIKey) {
		t.Error("API key leaked into the log output")
	}
}

func TestExecute_QuietWithoutDebug(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/prices/latest", testutil.NewSuccessResponse(testutil.LatestPriceData("WTI_USD", 78.45)))

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Logger = &logger })

	if _, err := c.Prices.Latest(context.Background(), "WTI_USD"); err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output without Debug:\n%s", buf.String())
	}
}

func TestExecute_RequestMetrics(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/v1/prices/latest", testutil.NewErrorResponse(http.StatusNotFound, "Commodity not found"))

	c, _ := newTestClient(t, mock.URL(), nil)

	requestsBefore := promtestutil.ToFloat64(requestsTotal.WithLabelValues("/v1/prices/latest", "404"))
	errorsBefore := promtestutil.ToFloat64(errorsTotal.WithLabelValues(CodeNotFound))

	_, err := c.Prices.Latest(context.Background(), "UNKNOWN")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want not found", err)
	}

	if got := promtestutil.ToFloat64(requestsTotal.WithLabelValues("/v1/prices/latest", "404")) - requestsBefore; got != 1 {
		t.Errorf("requests metric delta = %v, want 1", got)
	}
	if got := promtestutil.ToFloat64(errorsTotal.WithLabelValues(CodeNotFound)) - errorsBefore; got != 1 {
		t.Errorf("errors metric delta = %v, want 1", got)
	}
}

func TestBuildURL(t *testing.T) {
	c, _ := newTestClient(t, "https://api.example.com", nil)

	r := newRequest(http.MethodGet, "/v1/prices/latest", "v1/prices/latest").
		param("by_code", "WTI_USD").
		param("empty", "")

	if got := c.buildURL(r); got != "https://api.example.com/v1/prices/latest?by_code=WTI_USD" {
		t.Errorf("buildURL() = %q", got)
	}
}
