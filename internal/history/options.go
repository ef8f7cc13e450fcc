package history

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreOption is a functional option for configuring a history store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for history stores.
type storeConfig struct {
	ttl         time.Duration
	keyPrefix   string
	path        string
	redisClient *redis.Client
	redisURL    string
	now         func() time.Time
	sweepEvery  time.Duration
}

// WithTTL sets the default TTL used when Set is called without one.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithKeyPrefix sets the prefix prepended to anchors in key-value drivers.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.keyPrefix = prefix
	}
}

// WithPath sets the on-disk location for the pebble and sqlite drivers.
func WithPath(path string) StoreOption {
	return func(c *storeConfig) {
		c.path = path
	}
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisURL makes the Redis store dial its own client.
func WithRedisURL(url string) StoreOption {
	return func(c *storeConfig) {
		c.redisURL = url
	}
}

// WithClock overrides the time source used for expiry by the
// memory, pebble and sqlite drivers.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSweepInterval sets how often the memory, pebble and sqlite drivers
// reclaim expired conversations. Sweeps run on write.
func WithSweepInterval(d time.Duration) StoreOption {
	return func(c *storeConfig) {
		if d > 0 {
			c.sweepEvery = d
		}
	}
}
