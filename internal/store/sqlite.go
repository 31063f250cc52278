package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/huddlechat/gatekit/internal/domain"
)

// SQLite is the default QuotaStore: a local key/value session store that
// survives process restarts. Windows are stored as two rows per
// (user, feature) pair under "<feature>_usage_count" and
// "<feature>_window_start", plain overwrite, no schema versioning.
//
// Mutations are serialized with one process-wide mutex. A single-user
// client sees negligible contention, so per-key locking buys nothing here.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_kv (
	user_id TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (user_id, key)
);
`

// NewSQLite opens (or creates) the session store at path. Use ":memory:"
// for a throwaway store.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	// modernc sqlite serializes through a single connection; more would
	// only trade lock errors for busy errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session store schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Window returns the pair's window, creating {0, now} if absent.
func (s *SQLite) Window(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, now time.Time) (domain.UsageWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok, err := s.read(ctx, userID, feature)
	if err != nil {
		return domain.UsageWindow{}, err
	}
	if !ok {
		w = domain.UsageWindow{Count: 0, WindowStart: now}
		if err := s.write(ctx, userID, feature, w); err != nil {
			return domain.UsageWindow{}, err
		}
	}
	return w, nil
}

// TryAdvanceWindow resets an expired window to {0, now}. Idempotent: a
// second caller observing the freshly reset window finds it unexpired and
// does nothing.
func (s *SQLite) TryAdvanceWindow(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, window time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok, err := s.read(ctx, userID, feature)
	if err != nil {
		return err
	}
	if !ok {
		return s.write(ctx, userID, feature, domain.UsageWindow{Count: 0, WindowStart: now})
	}
	if w.Expired(now, window) {
		return s.write(ctx, userID, feature, domain.UsageWindow{Count: 0, WindowStart: now})
	}
	return nil
}

// Increment advances the pair's count by one.
func (s *SQLite) Increment(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok, err := s.read(ctx, userID, feature)
	if err != nil {
		return err
	}
	if !ok {
		w = domain.UsageWindow{Count: 0, WindowStart: now}
	}
	w.Count++
	return s.write(ctx, userID, feature, w)
}

// Reset clears every key held for the user.
func (s *SQLite) Reset(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM session_kv WHERE user_id = ?`, userID.String())
	if err != nil {
		return fmt.Errorf("reset session store for user %s: %w", userID, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// read loads both keys of a pair. ok is false when either key is missing;
// a half-written pair reads as absent and is lazily recreated.
func (s *SQLite) read(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey) (domain.UsageWindow, bool, error) {
	count, ok, err := s.get(ctx, userID, usageCountKey(feature))
	if err != nil || !ok {
		return domain.UsageWindow{}, false, err
	}
	start, ok, err := s.get(ctx, userID, windowStartKey(feature))
	if err != nil || !ok {
		return domain.UsageWindow{}, false, err
	}

	n, err := strconv.ParseUint(count, 10, 32)
	if err != nil {
		return domain.UsageWindow{}, false, fmt.Errorf("corrupt usage count %q: %w", count, err)
	}
	unix, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return domain.UsageWindow{}, false, fmt.Errorf("corrupt window start %q: %w", start, err)
	}

	return domain.UsageWindow{Count: uint(n), WindowStart: time.Unix(unix, 0)}, true, nil
}

func (s *SQLite) write(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, w domain.UsageWindow) error {
	if err := s.set(ctx, userID, usageCountKey(feature), strconv.FormatUint(uint64(w.Count), 10)); err != nil {
		return err
	}
	return s.set(ctx, userID, windowStartKey(feature), strconv.FormatInt(w.WindowStart.Unix(), 10))
}

func (s *SQLite) get(ctx context.Context, userID uuid.UUID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_kv WHERE user_id = ? AND key = ?`,
		userID.String(), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read session key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) set(ctx context.Context, userID uuid.UUID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_kv (user_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value`,
		userID.String(), key, value,
	)
	if err != nil {
		return fmt.Errorf("write session key %q: %w", key, err)
	}
	return nil
}
