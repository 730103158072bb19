package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlProfiles = `
CREATE TABLE IF NOT EXISTS nova_profiles (
    id         TEXT     PRIMARY KEY,
    name       TEXT     NOT NULL,
    email      TEXT     NOT NULL DEFAULT '',
    photo_url  TEXT     NOT NULL DEFAULT '',
    points     INTEGER  NOT NULL CHECK (points >= 0),
    current    BOOLEAN  NOT NULL DEFAULT false
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nova_profiles_current
    ON nova_profiles (current) WHERE current;
`

const ddlMistakes = `
CREATE TABLE IF NOT EXISTS nova_mistakes (
    seq              BIGSERIAL  PRIMARY KEY,
    id               TEXT       NOT NULL UNIQUE,
    user_id          TEXT       NOT NULL,
    timestamp_ms     BIGINT     NOT NULL,
    original_text    TEXT       NOT NULL,
    corrected_text   TEXT       NOT NULL,
    feedback         TEXT       NOT NULL,
    points_deducted  INTEGER    NOT NULL,
    type             TEXT       NOT NULL CHECK (type IN ('grammar', 'language'))
);

CREATE INDEX IF NOT EXISTS idx_nova_mistakes_user_seq
    ON nova_mistakes (user_id, seq DESC);
`

// Migrate creates the progress tables if they do not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlProfiles, ddlMistakes} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}
