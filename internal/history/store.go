// Package history persists conversation turns keyed by the bot's reply message.
//
// A conversation is stored as one JSON array of turns under one anchor and is
// always replaced whole. Entries expire after a TTL; every driver treats an
// expired entry exactly like a missing one.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

// DefaultTTL is how long a conversation survives after its last write.
const DefaultTTL = 2 * time.Hour

// DefaultSweepInterval is the minimum time between expiry sweeps in drivers
// without native expiry.
const DefaultSweepInterval = 10 * time.Minute

var (
	// ErrInvalidConfig is returned when a driver is missing required options.
	ErrInvalidConfig = errors.New("history: invalid store configuration")
	// ErrInvalidStoreType is returned for an unknown driver name.
	ErrInvalidStoreType = errors.New("history: invalid store type")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("history: store closed")
)

// Store defines the conversation storage operations.
// Implementations are safe for concurrent use.
type Store interface {
	// Get returns the turns stored under anchor, oldest first.
	// Returns nil (not an error) when nothing is stored or the entry expired.
	Get(ctx context.Context, anchor types.Anchor) ([]types.Turn, error)

	// Set replaces the turns stored under anchor. A ttl <= 0 uses the
	// store's default TTL.
	Set(ctx context.Context, anchor types.Anchor, turns []types.Turn, ttl time.Duration) error

	// Delete removes anchor. Deleting a missing anchor is not an error.
	Delete(ctx context.Context, anchor types.Anchor) error

	// Close releases the store's resources.
	Close() error
}

// StoreType names a storage driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypePebble StoreType = "pebble"
	StoreTypeSQLite StoreType = "sqlite"
)

// NewStore creates a Store of the given type.
// Redis requires WithRedisClient or WithRedisURL; pebble and sqlite require WithPath.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{
		ttl:       DefaultTTL,
		keyPrefix:  "conversation:",
		now:        time.Now,
		sweepEvery: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}

	logging.HistoryDebug("opening %s store (ttl=%v)", storeType, cfg.ttl)

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(cfg), nil

	case StoreTypeRedis:
		client := cfg.redisClient
		if client == nil {
			if cfg.redisURL == "" {
				return nil, fmt.Errorf("%w: redis needs a client or URL", ErrInvalidConfig)
			}
			ropts, err := redis.ParseURL(cfg.redisURL)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			client = redis.NewClient(ropts)
		}
		return newRedisStore(client, cfg), nil

	case StoreTypePebble:
		if cfg.path == "" {
			return nil, fmt.Errorf("%w: pebble needs a path", ErrInvalidConfig)
		}
		return openPebbleStore(cfg)

	case StoreTypeSQLite:
		if cfg.path == "" {
			return nil, fmt.Errorf("%w: sqlite needs a path", ErrInvalidConfig)
		}
		return openSQLiteStore(cfg)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeType)
	}
}

// sweepSchedule rate-limits expiry sweeps. Most anchors are written once
// and never read again, so expiry on read alone never reclaims them.
type sweepSchedule struct {
	mu    sync.Mutex
	every time.Duration
	last  time.Time
}

func newSweepSchedule(every time.Duration, now time.Time) *sweepSchedule {
	return &sweepSchedule{every: every, last: now}
}

// due reports whether a sweep should run at now and, if so, claims it.
func (s *sweepSchedule) due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.last) < s.every {
		return false
	}
	s.last = now
	return true
}
