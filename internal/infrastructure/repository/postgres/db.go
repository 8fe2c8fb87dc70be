package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101401

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates tables and indexes. Bootstrap DDL is serialized across
// api and worker startups with a transaction-scoped advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	image_url TEXT NOT NULL,
	image_key TEXT NOT NULL,
	status TEXT NOT NULL,
	plant_name TEXT NOT NULL DEFAULT '',
	plant_family TEXT NOT NULL DEFAULT '',
	plant_genus TEXT NOT NULL DEFAULT '',
	plant_species TEXT NOT NULL DEFAULT '',
	confidence INTEGER NOT NULL DEFAULT 0 CHECK (confidence BETWEEN 0 AND 100),
	diseases JSONB NOT NULL DEFAULT '[]'::jsonb,
	health_status TEXT NOT NULL DEFAULT 'unknown',
	weather JSONB,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	notes TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	is_public BOOLEAN NOT NULL DEFAULT FALSE,
	processing_time_ms BIGINT,
	wiki_description TEXT NOT NULL DEFAULT '',
	wiki_url TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
CREATE INDEX IF NOT EXISTS idx_analyses_location ON analyses(latitude, longitude) WHERE latitude IS NOT NULL;

CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	analysis_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	last_activity TIMESTAMPTZ NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_chat_sessions_active ON chat_sessions(user_id, analysis_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_activity ON chat_sessions(user_id, last_activity DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
	chat_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	content TEXT NOT NULL,
	sender TEXT NOT NULL,
	message_type TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chat_id, position)
);
`

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
