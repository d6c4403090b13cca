package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/observability"
)

const redisKeyPrefix = "carbon:geocode:"

// redisStore is the subset of *redis.Client the shared cache uses.
type redisStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCachedGeocoder shares geocoding results between processes through
// Redis. Redis errors never fail a lookup; the provider is asked instead.
type RedisCachedGeocoder struct {
	inner   domain.Geocoder
	store   redisStore
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRedisCachedGeocoder wraps inner with a Redis cache whose entries expire after ttl.
func NewRedisCachedGeocoder(inner domain.Geocoder, store redisStore, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *RedisCachedGeocoder {
	return &RedisCachedGeocoder{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisCachedGeocoder) ForwardGeocode(ctx context.Context, city string) (domain.GeocodingResult, error) {
	key := redisKeyPrefix + domain.NormalizeCity(city)

	val, err := c.store.Get(ctx, key).Result()
	switch {
	case err == nil:
		var result domain.GeocodingResult
		if jerr := json.Unmarshal([]byte(val), &result); jerr == nil {
			c.metrics.GeocodeCache.WithLabelValues("redis", "hit").Inc()
			return result, nil
		}
		c.logger.Warn("discarding corrupt geocode cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("redis geocode cache read failed", "key", key, "error", err)
	}
	c.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()

	result, err := c.inner.ForwardGeocode(ctx, city)
	if err != nil {
		return result, err
	}

	data, err := json.Marshal(result)
	if err == nil {
		if serr := c.store.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.logger.Warn("redis geocode cache write failed", "key", key, "error", serr)
		}
	}
	return result, nil
}
