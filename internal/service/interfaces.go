package service

import (
	"context"
	"time"
)

// ConnectionRepository is the durable store of connection metadata. The
// store enforces at most one active row per (agency_id, provider) via a
// partial unique index; Create surfaces a violation as an ALREADY_CONNECTED
// conflict so the service-level existence check stays a fast path, not the
// only guard.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *Connection) error
	Update(ctx context.Context, conn *Connection) error

	// GetByAgencyAndProvider returns the most recent row for the pair, any
	// status, or (nil, nil) when none exists.
	GetByAgencyAndProvider(ctx context.Context, agencyID int64, provider string) (*Connection, error)

	// GetActive returns the active row for the pair, or (nil, nil).
	GetActive(ctx context.Context, agencyID int64, provider string) (*Connection, error)

	ListByAgency(ctx context.Context, agencyID int64) ([]Connection, error)
	CountActiveByAgency(ctx context.Context, agencyID int64) (int64, error)

	// ListDueForRefresh returns active OAuth rows whose expiry falls at or
	// before the given instant, oldest expiry first, capped at limit.
	ListDueForRefresh(ctx context.Context, before time.Time, limit int) ([]Connection, error)
}

// AgencyRepository resolves agencies and their quota-relevant usage.
type AgencyRepository interface {
	// GetByID returns (nil, nil) when the agency does not exist.
	GetByID(ctx context.Context, id int64) (*Agency, error)

	// ActiveTier returns the agency's current subscription tier, TierFree
	// when no paid subscription is active.
	ActiveTier(ctx context.Context, agencyID int64) (string, error)

	CountClients(ctx context.Context, agencyID int64) (int64, error)
	CountMembers(ctx context.Context, agencyID int64) (int64, error)
}

// SecretVault stores token material under opaque references, decoupled from
// business metadata. Put mints a new reference; Update rewrites in place so
// a refresh never changes the connection's SecretRef. Delete is idempotent.
type SecretVault interface {
	Put(ctx context.Context, material *TokenMaterial) (string, error)
	Get(ctx context.Context, ref string) (*TokenMaterial, error)
	Update(ctx context.Context, ref string, material *TokenMaterial) error
	Delete(ctx context.Context, ref string) error
}

// AuditRecorder appends to the operational history. Entries are written on
// every mutation, including failure paths that left partial state behind.
type AuditRecorder interface {
	Append(ctx context.Context, entry *AuditEntry) error
}

// ConnectionListCache caches per-agency connection listings. Get returns
// (nil, nil) on a miss; Invalidate is called after every mutation.
type ConnectionListCache interface {
	Get(ctx context.Context, agencyID int64) ([]Connection, error)
	Set(ctx context.Context, agencyID int64, conns []Connection) error
	Invalidate(ctx context.Context, agencyID int64) error
}
