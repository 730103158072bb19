// Package sqlite provides a progress.Store backed by a local SQLite database
// (pure-Go modernc.org/sqlite driver, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/MrWong99/nova/internal/progress"
)

var _ progress.Store = (*Store)(nil)

// Store wraps SQLite access for learner progress.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite store: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return s, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id        TEXT    PRIMARY KEY,
			name      TEXT    NOT NULL,
			email     TEXT    NOT NULL,
			photo_url TEXT    NOT NULL,
			points    INTEGER NOT NULL CHECK (points >= 0),
			current   INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS mistakes (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT    NOT NULL UNIQUE,
			user_id         TEXT    NOT NULL,
			timestamp_ms    INTEGER NOT NULL,
			original_text   TEXT    NOT NULL,
			corrected_text  TEXT    NOT NULL,
			feedback        TEXT    NOT NULL,
			points_deducted INTEGER NOT NULL,
			type            TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mistakes_user_seq ON mistakes(user_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CurrentProfile implements progress.ProfileStore.
func (s *Store) CurrentProfile(ctx context.Context) (progress.Profile, error) {
	var p progress.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, photo_url, points FROM profiles WHERE current = 1 LIMIT 1`,
	).Scan(&p.ID, &p.Name, &p.Email, &p.PhotoURL, &p.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.Profile{}, progress.ErrNoProfile
	}
	if err != nil {
		return progress.Profile{}, fmt.Errorf("sqlite store: current profile: %w", err)
	}
	return p, nil
}

// SaveProfile implements progress.ProfileStore.
func (s *Store) SaveProfile(ctx context.Context, p progress.Profile) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE profiles SET current = 0 WHERE current = 1`); err != nil {
		return fmt.Errorf("sqlite store: clear current: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, name, email, photo_url, points, current)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, email = excluded.email, photo_url = excluded.photo_url,
		   points = excluded.points, current = 1`,
		p.ID, p.Name, p.Email, p.PhotoURL, max(0, p.Points))
	if err != nil {
		return fmt.Errorf("sqlite store: upsert profile: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}
	return nil
}

// DeleteProfile implements progress.ProfileStore.
func (s *Store) DeleteProfile(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE current = 1`); err != nil {
		return fmt.Errorf("sqlite store: delete profile: %w", err)
	}
	return nil
}

// ApplyDelta implements progress.ScoreStore.
func (s *Store) ApplyDelta(ctx context.Context, userID string, delta int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET points = MAX(0, points + ?) WHERE id = ?`, delta, userID)
	if err != nil {
		return fmt.Errorf("sqlite store: apply delta: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store: apply delta: %w", err)
	}
	if n == 0 {
		return progress.ErrNoProfile
	}
	return nil
}

// AppendMistake implements progress.MistakeStore.
func (s *Store) AppendMistake(ctx context.Context, userID string, m progress.Mistake) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mistakes (id, user_id, timestamp_ms, original_text, corrected_text, feedback, points_deducted, type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, userID, m.Timestamp, m.OriginalText, m.CorrectedText, m.Feedback, m.PointsDeducted, string(m.Type))
	if err != nil {
		return fmt.Errorf("sqlite store: append mistake: %w", err)
	}
	return nil
}

// Mistakes implements progress.MistakeStore.
func (s *Store) Mistakes(ctx context.Context, userID string, limit int) ([]progress.Mistake, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp_ms, original_text, corrected_text, feedback, points_deducted, type
		 FROM mistakes WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list mistakes: %w", err)
	}
	defer rows.Close()

	var out []progress.Mistake
	for rows.Next() {
		var (
			m   progress.Mistake
			typ string
		)
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.OriginalText, &m.CorrectedText, &m.Feedback, &m.PointsDeducted, &typ); err != nil {
			return nil, fmt.Errorf("sqlite store: scan mistake: %w", err)
		}
		m.Type = progress.MistakeType(typ)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: list mistakes: %w", err)
	}
	return out, nil
}
