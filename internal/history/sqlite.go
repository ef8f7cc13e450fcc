package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	anchor     TEXT PRIMARY KEY,
	turns      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_expires ON conversations(expires_at);
`

// sqliteStore implements Store on a single SQLite table.
type sqliteStore struct {
	db    *sql.DB
	ttl   time.Duration
	now   func() time.Time
	sweep *sweepSchedule
}

func openSQLiteStore(cfg *storeConfig) (*sqliteStore, error) {
	if cfg.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.HistoryDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.HistoryDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &sqliteStore{db: db, ttl: cfg.ttl, now: cfg.now, sweep: newSweepSchedule(cfg.sweepEvery, cfg.now())}
	if n, err := s.purgeExpired(context.Background()); err != nil {
		logging.HistoryError("failed to purge expired conversations: %v", err)
	} else if n > 0 {
		logging.History("purged %d expired conversations", n)
	}
	logging.History("sqlite history store opened at %s", cfg.path)
	return s, nil
}

// Get implements Store.
func (s *sqliteStore) Get(ctx context.Context, anchor types.Anchor) ([]types.Turn, error) {
	var raw string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT turns, expires_at FROM conversations WHERE anchor = ?", string(anchor),
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.now().UnixNano() >= expiresAt {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE anchor = ? AND expires_at = ?", string(anchor), expiresAt); err != nil {
			logging.HistoryDebug("failed to drop expired %s: %v", anchor, err)
		}
		return nil, nil
	}
	return decodeTurns([]byte(raw))
}

// Set implements Store.
func (s *sqliteStore) Set(ctx context.Context, anchor types.Anchor, turns []types.Turn, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	raw, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	if s.sweep.due(s.now()) {
		if n, err := s.purgeExpired(ctx); err != nil {
			logging.HistoryError("failed to purge expired conversations: %v", err)
		} else if n > 0 {
			logging.HistoryDebug("swept %d expired conversations", n)
		}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (anchor, turns, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(anchor) DO UPDATE SET turns = excluded.turns, expires_at = excluded.expires_at`,
		string(anchor), string(raw), s.now().Add(ttl).UnixNano(),
	)
	return err
}

// Delete implements Store.
func (s *sqliteStore) Delete(ctx context.Context, anchor types.Anchor) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE anchor = ?", string(anchor))
	return err
}

// Close implements Store.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) purgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE expires_at <= ?", s.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
