package history

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/pebble"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peterbot/internal/types"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// driverCase opens one driver and knows how to age its entries.
type driverCase struct {
	name    string
	open    func(t *testing.T) Store
	advance func(d time.Duration)
}

func drivers(t *testing.T) []driverCase {
	t.Helper()

	memClock := newFakeClock()
	pebbleClock := newFakeClock()
	sqliteClock := newFakeClock()
	mr := miniredis.RunT(t)

	return []driverCase{
		{
			name: "memory",
			open: func(t *testing.T) Store {
				s, err := NewStore(StoreTypeMemory, WithClock(memClock.Now))
				require.NoError(t, err)
				return s
			},
			advance: memClock.Advance,
		},
		{
			name: "redis",
			open: func(t *testing.T) Store {
				mr.FlushAll()
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				s, err := NewStore(StoreTypeRedis, WithRedisClient(client))
				require.NoError(t, err)
				return s
			},
			advance: mr.FastForward,
		},
		{
			name: "pebble",
			open: func(t *testing.T) Store {
				s, err := NewStore(StoreTypePebble,
					WithPath(filepath.Join(t.TempDir(), "history")),
					WithClock(pebbleClock.Now))
				require.NoError(t, err)
				return s
			},
			advance: pebbleClock.Advance,
		},
		{
			name: "sqlite",
			open: func(t *testing.T) Store {
				s, err := NewStore(StoreTypeSQLite,
					WithPath(filepath.Join(t.TempDir(), "history.db")),
					WithClock(sqliteClock.Now))
				require.NoError(t, err)
				return s
			},
			advance: sqliteClock.Advance,
		},
	}
}

func TestStoreDrivers(t *testing.T) {
	ctx := context.Background()
	conversation := []types.Turn{
		types.UserTurn("what time is it"),
		types.ModelTurn("It's 3pm."),
	}

	for _, dc := range drivers(t) {
		t.Run(dc.name, func(t *testing.T) {
			t.Run("missing anchor is absent", func(t *testing.T) {
				s := dc.open(t)
				defer s.Close()

				got, err := s.Get(ctx, "nope")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("set then get round trips in order", func(t *testing.T) {
				s := dc.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "1001", conversation, 0))
				got, err := s.Get(ctx, "1001")
				require.NoError(t, err)
				if diff := cmp.Diff(conversation, got); diff != "" {
					t.Fatalf("turns mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("set replaces the whole value", func(t *testing.T) {
				s := dc.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "1001", conversation, 0))
				replacement := []types.Turn{types.UserTurn("only me")}
				require.NoError(t, s.Set(ctx, "1001", replacement, 0))

				got, err := s.Get(ctx, "1001")
				require.NoError(t, err)
				assert.Equal(t, replacement, got)
			})

			t.Run("entries expire after ttl", func(t *testing.T) {
				s := dc.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "short", conversation, time.Minute))
				require.NoError(t, s.Set(ctx, "default", conversation, 0))

				dc.advance(2 * time.Minute)

				got, err := s.Get(ctx, "short")
				require.NoError(t, err)
				assert.Nil(t, got, "short-lived entry should be gone")

				got, err = s.Get(ctx, "default")
				require.NoError(t, err)
				assert.Len(t, got, 2, "default ttl is two hours")

				dc.advance(DefaultTTL)
				got, err = s.Get(ctx, "default")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("delete", func(t *testing.T) {
				s := dc.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "1001", conversation, 0))
				require.NoError(t, s.Delete(ctx, "1001"))
				require.NoError(t, s.Delete(ctx, "never-existed"))

				got, err := s.Get(ctx, "1001")
				require.NoError(t, err)
				assert.Nil(t, got)
			})
		})
	}
}

func TestNewStoreErrors(t *testing.T) {
	_, err := NewStore("mongo")
	assert.True(t, errors.Is(err, ErrInvalidStoreType))

	_, err = NewStore(StoreTypeRedis)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewStore(StoreTypeRedis, WithRedisURL("not a url"))
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewStore(StoreTypePebble)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewStore(StoreTypeSQLite)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestRedisStoreUsesPrefixAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewStore(StoreTypeRedis,
		WithRedisURL("redis://"+mr.Addr()),
		WithKeyPrefix("peter:"),
		WithTTL(30*time.Minute))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), "77", []types.Turn{types.UserTurn("hi")}, 0))

	assert.True(t, mr.Exists("peter:77"))
	assert.Equal(t, 30*time.Minute, mr.TTL("peter:77"))

	raw, err := mr.Get("peter:77")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"role":"user","text":"hi"}]`, raw)
}

func TestCorruptValueIsAnError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewStore(StoreTypeRedis, WithRedisClient(client))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, mr.Set("conversation:bad", `[{"role":"assistant","text":"x"}]`))
	_, err = s.Get(context.Background(), "bad")
	assert.Error(t, err)

	require.NoError(t, mr.Set("conversation:worse", `not json`))
	_, err = s.Get(context.Background(), "worse")
	assert.Error(t, err)
}

func TestMemoryStoreClosed(t *testing.T) {
	s, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "x", nil, 0), ErrClosed)
}

func TestMemoryStoreDoesNotAlias(t *testing.T) {
	s, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)

	turns := []types.Turn{types.UserTurn("original")}
	require.NoError(t, s.Set(context.Background(), "a", turns, 0))
	turns[0].Text = "mutated"

	got, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "original", got[0].Text)
}

func TestMemoryStoreSweepsUnreadExpiredEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, err := NewStore(StoreTypeMemory, WithClock(clock.Now))
	require.NoError(t, err)
	defer s.Close()
	mem := s.(*memoryStore)

	turns := []types.Turn{types.UserTurn("hi"), types.ModelTurn("hey")}
	for i := 0; i < 10000; i++ {
		require.NoError(t, s.Set(ctx, types.AnchorOf("c", strconv.Itoa(i)), turns, time.Minute))
	}
	assert.Equal(t, 10000, mem.size())

	clock.Advance(24 * time.Hour)
	require.NoError(t, s.Set(ctx, "fresh", turns, time.Minute))
	assert.Equal(t, 1, mem.size())

	got, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, turns, got)
}

func TestMemoryStoreSweepKeepsLiveEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, err := NewStore(StoreTypeMemory, WithClock(clock.Now), WithSweepInterval(time.Minute))
	require.NoError(t, err)
	defer s.Close()
	mem := s.(*memoryStore)

	require.NoError(t, s.Set(ctx, "short", nil, time.Minute))
	require.NoError(t, s.Set(ctx, "long", []types.Turn{types.UserTurn("still here")}, time.Hour))

	clock.Advance(2 * time.Minute)
	require.NoError(t, s.Set(ctx, "new", nil, time.Hour))
	assert.Equal(t, 2, mem.size())

	got, err := s.Get(ctx, "long")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDiskStoresSweepUnreadExpiredEntries(t *testing.T) {
	ctx := context.Background()
	turns := []types.Turn{types.UserTurn("hi")}

	t.Run("sqlite", func(t *testing.T) {
		clock := newFakeClock()
		s, err := NewStore(StoreTypeSQLite,
			WithPath(filepath.Join(t.TempDir(), "history.db")),
			WithClock(clock.Now))
		require.NoError(t, err)
		defer s.Close()
		db := s.(*sqliteStore).db

		require.NoError(t, s.Set(ctx, "old", turns, time.Minute))
		clock.Advance(DefaultSweepInterval)
		require.NoError(t, s.Set(ctx, "new", turns, time.Hour))

		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("pebble", func(t *testing.T) {
		clock := newFakeClock()
		s, err := NewStore(StoreTypePebble,
			WithPath(filepath.Join(t.TempDir(), "history")),
			WithClock(clock.Now))
		require.NoError(t, err)
		defer s.Close()
		ps := s.(*pebbleStore)

		require.NoError(t, s.Set(ctx, "old", turns, time.Minute))
		clock.Advance(DefaultSweepInterval)
		require.NoError(t, s.Set(ctx, "new", turns, time.Hour))

		_, _, err = ps.db.Get(ps.key("old"))
		assert.ErrorIs(t, err, pebble.ErrNotFound)

		got, err := s.Get(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, turns, got)
	})
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("conversation;"), prefixEnd([]byte("conversation:")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
	assert.Nil(t, prefixEnd(nil))
}
