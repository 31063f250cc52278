package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/huddlechat/gatekit/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres is the server-authoritative QuotaStore backend. It trades the
// local session store for atomic SQL counters so several devices share one
// set of windows; the gate engine's decision logic is identical either way.
// It makes counters durable and atomic, not cross-device ordered.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle. The caller owns the handle's
// lifecycle configuration; run Migrate before first use.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the usage-window schema via goose.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.Up(db, "migrations")
}

// Window returns the pair's window, creating {0, now} if absent. The insert
// races benignly: ON CONFLICT DO NOTHING keeps the first writer's row.
func (p *Postgres) Window(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, now time.Time) (domain.UsageWindow, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO gate_usage_windows (user_id, feature, usage_count, window_start)
		 VALUES ($1, $2, 0, $3)
		 ON CONFLICT (user_id, feature) DO NOTHING`,
		userID, string(feature), now,
	)
	if err != nil {
		return domain.UsageWindow{}, fmt.Errorf("create usage window: %w", err)
	}

	var w domain.UsageWindow
	err = p.db.QueryRowContext(ctx,
		`SELECT usage_count, window_start FROM gate_usage_windows
		 WHERE user_id = $1 AND feature = $2`,
		userID, string(feature),
	).Scan(&w.Count, &w.WindowStart)
	if errors.Is(err, sql.ErrNoRows) {
		// Row vanished between insert and read; only an explicit reset
		// does that, so report a fresh window.
		return domain.UsageWindow{Count: 0, WindowStart: now}, nil
	}
	if err != nil {
		return domain.UsageWindow{}, fmt.Errorf("read usage window: %w", err)
	}
	return w, nil
}

// TryAdvanceWindow resets an expired window with a single conditional
// UPDATE, so concurrent callers observing the same expired window produce
// one reset. A window start ahead of now (clock skew between devices or a
// rolled-back clock) never matches the predicate.
func (p *Postgres) TryAdvanceWindow(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, window time.Duration, now time.Time) error {
	cutoff := now.Add(-window)
	_, err := p.db.ExecContext(ctx,
		`UPDATE gate_usage_windows
		 SET usage_count = 0, window_start = $3
		 WHERE user_id = $1 AND feature = $2
		   AND window_start <= $4
		   AND window_start <= $3`,
		userID, string(feature), now, cutoff,
	)
	if err != nil {
		return fmt.Errorf("advance usage window: %w", err)
	}
	return nil
}

// Increment atomically advances the count, creating the window if needed.
func (p *Postgres) Increment(ctx context.Context, userID uuid.UUID, feature domain.FeatureKey, now time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO gate_usage_windows (user_id, feature, usage_count, window_start)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (user_id, feature)
		 DO UPDATE SET usage_count = gate_usage_windows.usage_count + 1`,
		userID, string(feature), now,
	)
	if err != nil {
		return fmt.Errorf("increment usage window: %w", err)
	}
	return nil
}

// Reset drops every window held for the user.
func (p *Postgres) Reset(ctx context.Context, userID uuid.UUID) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM gate_usage_windows WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("reset usage windows for user %s: %w", userID, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
