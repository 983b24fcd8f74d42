package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/marketopshq/connecthub/internal/service"
)

// agencyRepository implements service.AgencyRepository on raw SQL.
type agencyRepository struct {
	sql *sql.DB
}

// NewAgencyRepository creates the agency store.
func NewAgencyRepository(sqlDB *sql.DB) service.AgencyRepository {
	return &agencyRepository{sql: sqlDB}
}

func (r *agencyRepository) GetByID(ctx context.Context, id int64) (*service.Agency, error) {
	var a service.Agency
	err := r.sql.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM agencies WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agency: %w", err)
	}
	return &a, nil
}

// ActiveTier resolves the agency's current tier. Expired or cancelled
// subscriptions fall back to the free tier rather than erroring, so a lapsed
// agency keeps read access within free limits.
func (r *agencyRepository) ActiveTier(ctx context.Context, agencyID int64) (string, error) {
	var tier string
	err := r.sql.QueryRowContext(ctx, `
		SELECT tier FROM subscriptions
		WHERE agency_id = $1 AND status = 'active'
			AND (current_period_end IS NULL OR current_period_end > NOW())
		ORDER BY id DESC
		LIMIT 1
	`, agencyID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return service.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve agency tier: %w", err)
	}
	return tier, nil
}

func (r *agencyRepository) CountClients(ctx context.Context, agencyID int64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM clients WHERE agency_id = $1`, agencyID)
}

func (r *agencyRepository) CountMembers(ctx context.Context, agencyID int64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM agency_members WHERE agency_id = $1`, agencyID)
}

func (r *agencyRepository) count(ctx context.Context, query string, agencyID int64) (int64, error) {
	var n int64
	if err := r.sql.QueryRowContext(ctx, query, agencyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count for agency %d: %w", agencyID, err)
	}
	return n, nil
}
