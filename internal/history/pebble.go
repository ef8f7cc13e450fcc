package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

// pebbleRecord is the stored value; pebble has no native expiry.
type pebbleRecord struct {
	ExpiresAt int64           `json:"expires_at"` // unix nanoseconds
	Turns     json.RawMessage `json:"turns"`
}

// pebbleStore implements Store on an embedded pebble database.
type pebbleStore struct {
	db     *pebble.DB
	ttl    time.Duration
	prefix string
	now    func() time.Time
	sweep  *sweepSchedule
}

func openPebbleStore(cfg *storeConfig) (*pebbleStore, error) {
	db, err := pebble.Open(cfg.path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", cfg.path, err)
	}
	logging.History("pebble history store opened at %s", cfg.path)
	return &pebbleStore{
		db:     db,
		ttl:    cfg.ttl,
		prefix: cfg.keyPrefix,
		now:    cfg.now,
		sweep:  newSweepSchedule(cfg.sweepEvery, cfg.now()),
	}, nil
}

// Get implements Store.
func (s *pebbleStore) Get(ctx context.Context, anchor types.Anchor) ([]types.Turn, error) {
	key := s.key(anchor)
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec pebbleRecord
	err = json.Unmarshal(val, &rec)
	closer.Close()
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	if s.now().UnixNano() >= rec.ExpiresAt {
		if err := s.db.Delete(key, pebble.NoSync); err != nil {
			logging.HistoryDebug("failed to drop expired %s: %v", anchor, err)
		}
		return nil, nil
	}
	return decodeTurns(rec.Turns)
}

// Set implements Store.
func (s *pebbleStore) Set(ctx context.Context, anchor types.Anchor, turns []types.Turn, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	raw, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	val, err := json.Marshal(pebbleRecord{
		ExpiresAt: s.now().Add(ttl).UnixNano(),
		Turns:     raw,
	})
	if err != nil {
		return err
	}
	if now := s.now(); s.sweep.due(now) {
		if n, err := s.purgeExpired(now); err != nil {
			logging.HistoryError("failed to purge expired conversations: %v", err)
		} else if n > 0 {
			logging.HistoryDebug("swept %d expired conversations", n)
		}
	}
	return s.db.Set(s.key(anchor), val, pebble.Sync)
}

// purgeExpired deletes every record under the key prefix that expired at now.
func (s *pebbleStore) purgeExpired(now time.Time) (int, error) {
	lower := []byte(s.prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: prefixEnd(lower)})
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var rec pebbleRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if now.UnixNano() >= rec.ExpiresAt {
			if err := batch.Delete(iter.Key(), nil); err != nil {
				iter.Close()
				return 0, err
			}
			n++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, batch.Commit(pebble.NoSync)
}

// prefixEnd returns the smallest key greater than every key with prefix p,
// or nil when no such key exists.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Delete implements Store.
func (s *pebbleStore) Delete(ctx context.Context, anchor types.Anchor) error {
	return s.db.Delete(s.key(anchor), pebble.Sync)
}

// Close implements Store.
func (s *pebbleStore) Close() error {
	return s.db.Close()
}

func (s *pebbleStore) key(anchor types.Anchor) []byte {
	return []byte(s.prefix + string(anchor))
}
