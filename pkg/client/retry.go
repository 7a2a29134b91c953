package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilpriceapi_retries_total",
		Help: "Total number of retry attempts by error code",
	}, []string{"code"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oilpriceapi_retry_backoff_seconds",
		Help:    "Wait before the next attempt by error code",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"code"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilpriceapi_retry_exhausted_total",
		Help: "Total number of times the attempt budget was exhausted by error code",
	}, []string{"code"})
)

// RetryStrategy selects how the wait between attempts grows.
type RetryStrategy string

const (
	// StrategyExponential waits base * 2^attempt.
	StrategyExponential RetryStrategy = "exponential"

	// StrategyLinear waits base * (attempt + 1).
	StrategyLinear RetryStrategy = "linear"

	// StrategyFixed always waits base.
	StrategyFixed RetryStrategy = "fixed"
)

// Valid reports whether s is a known strategy.
func (s RetryStrategy) Valid() bool {
	switch s {
	case StrategyExponential, StrategyLinear, StrategyFixed:
		return true
	default:
		return false
	}
}

// maxExponent bounds the exponential shift so the duration cannot overflow.
const maxExponent = 30

// Backoff returns the wait before retry number attempt (0 for the first
// retry) under the given strategy and base delay.
func Backoff(attempt int, strategy RetryStrategy, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	switch strategy {
	case StrategyLinear:
		return base * time.Duration(attempt+1)
	case StrategyFixed:
		return base
	default:
		if attempt > maxExponent {
			attempt = maxExponent
		}
		mult := time.Duration(1) << uint(attempt)
		if base > 0 && base > time.Duration(math.MaxInt64)/mult {
			return time.Duration(math.MaxInt64)
		}
		return base * mult
	}
}

// IsRetryable reports whether err is worth another attempt: timeouts,
// server errors, rate limiting and raw transport failures. Authentication,
// not found, other 4xx, cancellation and malformed responses are final.
func IsRetryable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Kind {
	case KindTimeout, KindServer, KindRateLimit:
		return true
	case KindGeneric:
		return apiErr.Code == CodeNetwork
	default:
		return false
	}
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the default Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// wait sleeps before the next attempt and records it as a retry.
func (c *Client) wait(ctx context.Context, apiErr *Error, attempt int, d time.Duration, reason string) error {
	retriesTotal.WithLabelValues(apiErr.Code).Inc()
	retryBackoffSeconds.WithLabelValues(apiErr.Code).Observe(d.Seconds())

	c.logger.Debug().
		Str("code", apiErr.Code).
		Int("attempt", attempt).
		Dur("wait", d).
		Str("reason", reason).
		Msg("Retrying request")

	if err := c.sleep(ctx, d); err != nil {
		c.logger.Debug().
			Str("code", apiErr.Code).
			Int("attempt", attempt).
			Msg("Context cancelled during retry wait")
		return cancelledError(fmt.Errorf("waiting to retry after %s: %w", apiErr.Code, err))
	}
	return nil
}

// retryAfterWait clamps a server-specified Retry-After to the configured cap.
func (c *Client) retryAfterWait(retryAfter time.Duration) time.Duration {
	if c.config.MaxRetryAfter > 0 && retryAfter > c.config.MaxRetryAfter {
		c.logger.Debug().
			Dur("retry_after", retryAfter).
			Dur("cap", c.config.MaxRetryAfter).
			Msg("Clamping server Retry-After")
		return c.config.MaxRetryAfter
	}
	return retryAfter
}
