package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq"
	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
	"github.com/marketopshq/connecthub/internal/service"
)

const pqUniqueViolation = "23505"

const connectionColumns = `id, agency_id, provider, mode, status, scope, metadata, secret_ref,
	expires_at, last_refreshed_at, connected_by, connected_at, revoked_by, revoked_at,
	created_at, updated_at`

// connectionRepository implements service.ConnectionRepository on raw SQL.
// Rows are append-per-lifecycle: a reconnect after revocation inserts a new
// row and the old one stays for history, which is why point reads take the
// most recent row for the pair.
type connectionRepository struct {
	sql *sql.DB
}

// NewConnectionRepository creates the connection store.
func NewConnectionRepository(sqlDB *sql.DB) service.ConnectionRepository {
	return &connectionRepository{sql: sqlDB}
}

func (r *connectionRepository) Create(ctx context.Context, conn *service.Connection) error {
	metadata, err := marshalMetadata(conn.Metadata)
	if err != nil {
		return err
	}
	err = r.sql.QueryRowContext(ctx, `
		INSERT INTO connections (agency_id, provider, mode, status, scope, metadata, secret_ref,
			expires_at, connected_by, connected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, conn.AgencyID, conn.Provider, conn.Mode, conn.Status, conn.Scope, metadata, conn.SecretRef,
		conn.ExpiresAt, conn.ConnectedBy, conn.ConnectedAt,
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if isActivePairViolation(err) {
			return infraerrors.Newf(http.StatusConflict, "ALREADY_CONNECTED",
				"an active %s connection already exists", conn.Provider)
		}
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *service.Connection) error {
	metadata, err := marshalMetadata(conn.Metadata)
	if err != nil {
		return err
	}
	err = r.sql.QueryRowContext(ctx, `
		UPDATE connections
		SET status = $2, scope = $3, metadata = $4, secret_ref = $5,
			expires_at = $6, last_refreshed_at = $7, revoked_by = $8, revoked_at = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, conn.ID, conn.Status, conn.Scope, metadata, conn.SecretRef,
		conn.ExpiresAt, conn.LastRefreshedAt, conn.RevokedBy, conn.RevokedAt,
	).Scan(&conn.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return infraerrors.Newf(http.StatusNotFound, "CONNECTION_NOT_FOUND",
				"connection %d not found", conn.ID)
		}
		return fmt.Errorf("update connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) GetByAgencyAndProvider(ctx context.Context, agencyID int64, provider string) (*service.Connection, error) {
	row := r.sql.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE agency_id = $1 AND provider = $2
		ORDER BY id DESC
		LIMIT 1
	`, agencyID, provider)
	return scanConnectionRow(row)
}

func (r *connectionRepository) GetActive(ctx context.Context, agencyID int64, provider string) (*service.Connection, error) {
	row := r.sql.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE agency_id = $1 AND provider = $2 AND status = 'active'
	`, agencyID, provider)
	return scanConnectionRow(row)
}

func (r *connectionRepository) ListByAgency(ctx context.Context, agencyID int64) ([]service.Connection, error) {
	// Latest row per provider; superseded lifecycle rows stay out of listings.
	rows, err := r.sql.QueryContext(ctx, `
		SELECT DISTINCT ON (provider) `+connectionColumns+`
		FROM connections
		WHERE agency_id = $1
		ORDER BY provider, id DESC
	`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []service.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conn)
	}
	return out, rows.Err()
}

func (r *connectionRepository) CountActiveByAgency(ctx context.Context, agencyID int64) (int64, error) {
	var n int64
	err := r.sql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM connections WHERE agency_id = $1 AND status = 'active'
	`, agencyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active connections: %w", err)
	}
	return n, nil
}

func (r *connectionRepository) ListDueForRefresh(ctx context.Context, before time.Time, limit int) ([]service.Connection, error) {
	rows, err := r.sql.QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE status = 'active' AND mode = 'oauth'
			AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list due connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []service.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conn)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*service.Connection, error) {
	var (
		conn            service.Connection
		metadata        []byte
		expiresAt       sql.NullTime
		lastRefreshedAt sql.NullTime
		revokedAt       sql.NullTime
	)
	err := row.Scan(&conn.ID, &conn.AgencyID, &conn.Provider, &conn.Mode, &conn.Status,
		&conn.Scope, &metadata, &conn.SecretRef,
		&expiresAt, &lastRefreshedAt, &conn.ConnectedBy, &conn.ConnectedAt,
		&conn.RevokedBy, &revokedAt, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conn.Metadata); err != nil {
			return nil, fmt.Errorf("decode connection metadata: %w", err)
		}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		conn.ExpiresAt = &t
	}
	if lastRefreshedAt.Valid {
		t := lastRefreshedAt.Time
		conn.LastRefreshedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		conn.RevokedAt = &t
	}
	return &conn, nil
}

func scanConnectionRow(row *sql.Row) (*service.Connection, error) {
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan connection: %w", err)
	}
	return conn, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	out, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode connection metadata: %w", err)
	}
	return out, nil
}

func isActivePairViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
