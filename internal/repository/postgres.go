// Package repository implements the service-layer collaborator interfaces on
// PostgreSQL and Redis. Tables are plain SQL managed by the migration below;
// the declarative schemas under ent/schema document the same shape for
// tooling that reads them.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// OpenPostgres opens and pings a PostgreSQL pool.
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// migrations are idempotent and applied in order at startup. The partial
// unique index on connections is the authoritative guard for the one active
// connection per (agency, provider) rule.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS agencies (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id                 BIGSERIAL PRIMARY KEY,
		agency_id          BIGINT      NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
		tier               TEXT        NOT NULL,
		status             TEXT        NOT NULL DEFAULT 'active',
		current_period_end TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS subscriptions_agency_idx ON subscriptions (agency_id, status)`,

	`CREATE TABLE IF NOT EXISTS agency_members (
		id        BIGSERIAL PRIMARY KEY,
		agency_id BIGINT      NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
		email     TEXT        NOT NULL,
		role      TEXT        NOT NULL DEFAULT 'member',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (agency_id, email)
	)`,

	`CREATE TABLE IF NOT EXISTS clients (
		id        BIGSERIAL PRIMARY KEY,
		agency_id BIGINT      NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
		name      TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS clients_agency_idx ON clients (agency_id)`,

	`CREATE TABLE IF NOT EXISTS connections (
		id                BIGSERIAL PRIMARY KEY,
		agency_id         BIGINT      NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
		provider          TEXT        NOT NULL,
		mode              TEXT        NOT NULL,
		status            TEXT        NOT NULL,
		scope             TEXT        NOT NULL DEFAULT '',
		metadata          JSONB       NOT NULL DEFAULT '{}',
		secret_ref        TEXT        NOT NULL DEFAULT '',
		expires_at        TIMESTAMPTZ,
		last_refreshed_at TIMESTAMPTZ,
		connected_by      TEXT        NOT NULL DEFAULT '',
		connected_at      TIMESTAMPTZ NOT NULL,
		revoked_by        TEXT        NOT NULL DEFAULT '',
		revoked_at        TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS connections_active_pair
		ON connections (agency_id, provider) WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS connections_refresh_due_idx
		ON connections (expires_at) WHERE status = 'active' AND mode = 'oauth'`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id            UUID PRIMARY KEY,
		agency_id     BIGINT      NOT NULL,
		connection_id BIGINT,
		provider      TEXT        NOT NULL DEFAULT '',
		action        TEXT        NOT NULL,
		actor         TEXT        NOT NULL DEFAULT '',
		metadata      JSONB       NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_agency_idx ON audit_log (agency_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS security_secrets (
		key        TEXT PRIMARY KEY,
		value      TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
