package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/marketopshq/connecthub/internal/service"
)

// auditRepository implements service.AuditRecorder as an append-only log.
// There is no update or delete path on this table.
type auditRepository struct {
	sql *sql.DB
}

// NewAuditRepository creates the audit log store.
func NewAuditRepository(sqlDB *sql.DB) *auditRepository {
	return &auditRepository{sql: sqlDB}
}

func (r *auditRepository) Append(ctx context.Context, entry *service.AuditEntry) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	var connectionID sql.NullInt64
	if entry.ConnectionID != 0 {
		connectionID = sql.NullInt64{Int64: entry.ConnectionID, Valid: true}
	}
	_, err = r.sql.ExecContext(ctx, `
		INSERT INTO audit_log (id, agency_id, connection_id, provider, action, actor, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.AgencyID, connectionID, entry.Provider, entry.Action, entry.Actor, metadata, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByAgency returns the agency's history, newest first.
func (r *auditRepository) ListByAgency(ctx context.Context, agencyID int64, limit int) ([]service.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.sql.QueryContext(ctx, `
		SELECT id, agency_id, connection_id, provider, action, actor, metadata, created_at
		FROM audit_log
		WHERE agency_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, agencyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []service.AuditEntry
	for rows.Next() {
		var (
			entry        service.AuditEntry
			connectionID sql.NullInt64
			metadata     []byte
		)
		if err := rows.Scan(&entry.ID, &entry.AgencyID, &connectionID, &entry.Provider,
			&entry.Action, &entry.Actor, &metadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if connectionID.Valid {
			entry.ConnectionID = connectionID.Int64
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
