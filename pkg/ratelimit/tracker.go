package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oilpriceapi_quota_remaining",
		Help: "Requests remaining in the current OilPriceAPI quota window",
	})

	quotaLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oilpriceapi_quota_limit",
		Help: "Request limit of the current OilPriceAPI quota window",
	})

	quotaLowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilpriceapi_quota_low_total",
		Help: "Responses that reported a low or critical quota",
	}, []string{"severity"})
)

// Response headers carrying the quota.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// stateTTL expires quota state that has not been refreshed.
const stateTTL = 24 * time.Hour

// epochThreshold separates a reset given as a unix timestamp from one
// given in seconds until reset.
const epochThreshold = 1_000_000_000

// Tracker records quota headers in Redis. It never blocks requests.
type Tracker struct {
	redis  *redis.Client
	key    string
	logger zerolog.Logger
}

// NewTracker creates a tracker storing state under namespace, which should
// identify the API key (see KeyFingerprint).
func NewTracker(redisClient *redis.Client, namespace string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		key:    redisKeyPrefix + namespace,
		logger: logger,
	}
}

// KeyFingerprint derives a stable, non-reversible namespace from an API key.
func KeyFingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:6])
}

// Key returns the Redis hash key holding the state.
func (t *Tracker) Key() string {
	return t.key
}

// GetState returns the stored quota state, or nil if none was recorded.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	fields, err := t.redis.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("get quota state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Msg("No quota state in Redis")
		return nil, nil
	}

	state := &QuotaState{}
	if state.Limit, err = atoiField(fields, fieldLimit); err != nil {
		return nil, err
	}
	if state.Remaining, err = atoiField(fields, fieldRemaining); err != nil {
		return nil, err
	}
	if v := fields[fieldResetAt]; v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", fieldResetAt, err)
		}
		if sec > 0 {
			state.ResetAt = time.Unix(sec, 0)
		}
	}
	if v := fields[fieldLastUpdate]; v != "" {
		if state.LastUpdate, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", fieldLastUpdate, err)
		}
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders parses the quota headers of a response and stores them.
// Responses without X-RateLimit-Remaining are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := strings.TrimSpace(headers.Get(HeaderRemaining))
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	var limit int
	if v := strings.TrimSpace(headers.Get(HeaderLimit)); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	now := time.Now()
	var resetAt time.Time
	if v := strings.TrimSpace(headers.Get(HeaderReset)); v != "" {
		reset, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		if reset >= epochThreshold {
			resetAt = time.Unix(reset, 0)
		} else {
			resetAt = now.Add(time.Duration(reset) * time.Second)
		}
	}

	state := &QuotaState{
		Limit:      limit,
		Remaining:  remain,
		ResetAt:    resetAt,
		LastUpdate: now,
	}
	state.UpdateHealth()

	var resetUnix int64
	if !resetAt.IsZero() {
		resetUnix = resetAt.Unix()
	}

	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.key, map[string]interface{}{
		fieldLimit:      limit,
		fieldRemaining:  remain,
		fieldResetAt:    resetUnix,
		fieldLastUpdate: now.UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, t.key, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}

	quotaRemaining.Set(float64(remain))
	if limit > 0 {
		quotaLimit.Set(float64(limit))
	}

	switch {
	case state.IsCritical():
		quotaLowTotal.WithLabelValues("critical").Inc()
		t.logger.Error().
			Int("remaining", remain).
			Int("limit", limit).
			Dur("reset_in", state.TimeUntilReset()).
			Msg("OilPriceAPI quota CRITICAL")
	case state.IsLow():
		quotaLowTotal.WithLabelValues("warning").Inc()
		t.logger.Warn().
			Int("remaining", remain).
			Int("limit", limit).
			Msg("OilPriceAPI quota running low")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Int("limit", limit).
			Bool("is_healthy", state.IsHealthy).
			Msg("OilPriceAPI quota updated")
	}

	return nil
}

// Reset removes the stored state.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.redis.Del(ctx, t.key).Err(); err != nil {
		return fmt.Errorf("reset quota state: %w", err)
	}
	return nil
}

func atoiField(fields map[string]string, name string) (int, error) {
	v := fields[name]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}
