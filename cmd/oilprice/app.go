package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/oilpriceapi-go/pkg/client"
	"github.com/Sternrassler/oilpriceapi-go/pkg/logging"
	"github.com/Sternrassler/oilpriceapi-go/pkg/metrics"
	"github.com/Sternrassler/oilpriceapi-go/pkg/ratelimit"
)

// Environment variables read as flag fallbacks.
const (
	envAPIKey   = "OILPRICEAPI_KEY"
	envBaseURL  = "OILPRICEAPI_BASE_URL"
	envRedisURL = "REDIS_URL"
)

var errRedisRequired = errors.New("redis url is required (--redis-url or REDIS_URL)")

// options holds the global flags.
type options struct {
	apiKey      string
	baseURL     string
	redisURL    string
	metricsAddr string
	retries     int
	timeout     time.Duration
	debug       bool
	pretty      bool
}

// app carries the CLI dependencies. Clients are built lazily so commands
// that fail flag validation never touch the network.
type app struct {
	opts   options
	getenv func(string) string
	stderr io.Writer
	logger zerolog.Logger

	client  *client.Client
	redis   *redis.Client
	tracker *ratelimit.Tracker
	metrics *http.Server
}

func newApp(getenv func(string) string, stderr io.Writer) *app {
	return &app{getenv: getenv, stderr: stderr, logger: zerolog.Nop()}
}

// setup configures logging and the optional metrics listener.
func (a *app) setup() error {
	level := logging.LevelWarn
	if a.opts.debug {
		level = logging.LevelDebug
	}
	logging.Setup(logging.Config{Level: level, Pretty: a.opts.pretty, Output: a.stderr})
	a.logger = logging.NewLogger(logging.ComponentCLI)

	if a.opts.metricsAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", a.opts.metricsAddr)
	if err != nil {
		return fmt.Errorf("listen on metrics address: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	a.logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	return nil
}

func (a *app) fallback(value, key string) string {
	if value != "" {
		return value
	}
	return strings.TrimSpace(a.getenv(key))
}

// apiClient returns the shared client, creating it on first use.
func (a *app) apiClient(ctx context.Context) (*client.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	cfg := client.DefaultConfig(a.fallback(a.opts.apiKey, envAPIKey))
	cfg.BaseURL = a.fallback(a.opts.baseURL, envBaseURL)
	cfg.MaxRetries = a.opts.retries
	cfg.Timeout = a.opts.timeout
	cfg.Debug = a.opts.debug
	cfg.UserAgentSuffix = "oilprice-cli"

	if a.fallback(a.opts.redisURL, envRedisURL) != "" {
		tracker, err := a.quotaTracker(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		cfg.Quota = tracker
	}

	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// quotaTracker connects to Redis and returns the tracker for apiKey.
func (a *app) quotaTracker(ctx context.Context, apiKey string) (*ratelimit.Tracker, error) {
	if a.tracker != nil {
		return a.tracker, nil
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, client.ErrMissingAPIKey
	}

	rawURL := a.fallback(a.opts.redisURL, envRedisURL)
	if rawURL == "" {
		return nil, errRedisRequired
	}

	opts := &redis.Options{Addr: rawURL}
	if strings.Contains(rawURL, "://") {
		var err error
		if opts, err = redis.ParseURL(rawURL); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rdb
	a.tracker = ratelimit.NewTracker(rdb, ratelimit.KeyFingerprint(strings.TrimSpace(apiKey)),
		logging.NewLogger(logging.ComponentRateLimit))

	return a.tracker, nil
}

// close releases everything setup and apiClient acquired.
func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.metrics.Shutdown(ctx)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
