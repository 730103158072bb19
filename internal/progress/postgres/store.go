// Package postgres provides a PostgreSQL-backed progress.Store.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/nova/internal/progress"
)

var _ progress.Store = (*Store)(nil)

// Store holds a single [pgxpool.Pool]. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings the server and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Ping reports whether the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CurrentProfile implements progress.ProfileStore.
func (s *Store) CurrentProfile(ctx context.Context) (progress.Profile, error) {
	var p progress.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, photo_url, points FROM nova_profiles WHERE current LIMIT 1`,
	).Scan(&p.ID, &p.Name, &p.Email, &p.PhotoURL, &p.Points)
	if errors.Is(err, pgx.ErrNoRows) {
		return progress.Profile{}, progress.ErrNoProfile
	}
	if err != nil {
		return progress.Profile{}, fmt.Errorf("postgres store: current profile: %w", err)
	}
	return p, nil
}

// SaveProfile implements progress.ProfileStore.
func (s *Store) SaveProfile(ctx context.Context, p progress.Profile) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE nova_profiles SET current = false WHERE current`); err != nil {
			return fmt.Errorf("postgres store: clear current: %w", err)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO nova_profiles (id, name, email, photo_url, points, current)
			 VALUES ($1, $2, $3, $4, $5, true)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name, email = EXCLUDED.email, photo_url = EXCLUDED.photo_url,
			   points = EXCLUDED.points, current = true`,
			p.ID, p.Name, p.Email, p.PhotoURL, max(0, p.Points))
		if err != nil {
			return fmt.Errorf("postgres store: upsert profile: %w", err)
		}
		return nil
	})
}

// DeleteProfile implements progress.ProfileStore.
func (s *Store) DeleteProfile(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM nova_profiles WHERE current`); err != nil {
		return fmt.Errorf("postgres store: delete profile: %w", err)
	}
	return nil
}

// ApplyDelta implements progress.ScoreStore.
func (s *Store) ApplyDelta(ctx context.Context, userID string, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE nova_profiles SET points = GREATEST(0, points + $2) WHERE id = $1`, userID, delta)
	if err != nil {
		return fmt.Errorf("postgres store: apply delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return progress.ErrNoProfile
	}
	return nil
}

// AppendMistake implements progress.MistakeStore.
func (s *Store) AppendMistake(ctx context.Context, userID string, m progress.Mistake) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nova_mistakes (id, user_id, timestamp_ms, original_text, corrected_text, feedback, points_deducted, type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, userID, m.Timestamp, m.OriginalText, m.CorrectedText, m.Feedback, m.PointsDeducted, string(m.Type))
	if err != nil {
		return fmt.Errorf("postgres store: append mistake: %w", err)
	}
	return nil
}

// Mistakes implements progress.MistakeStore.
func (s *Store) Mistakes(ctx context.Context, userID string, limit int) ([]progress.Mistake, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp_ms, original_text, corrected_text, feedback, points_deducted, type
		 FROM nova_mistakes WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`, userID, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list mistakes: %w", err)
	}
	defer rows.Close()

	var out []progress.Mistake
	for rows.Next() {
		var (
			m   progress.Mistake
			typ string
		)
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.OriginalText, &m.CorrectedText, &m.Feedback, &m.PointsDeducted, &typ); err != nil {
			return nil, fmt.Errorf("postgres store: scan mistake: %w", err)
		}
		m.Type = progress.MistakeType(typ)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list mistakes: %w", err)
	}
	return out, nil
}
