// Package service contains the connection lifecycle orchestration and the
// pure decision logic around it. It owns the domain model and declares the
// collaborator interfaces it needs; implementations live in repository and
// cache packages.
package service

import (
	"time"
)

// Connection statuses.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
	StatusExpired = "expired"
	StatusInvalid = "invalid"
)

// Connection modes. OAuth connections hold a vault reference; manual
// invitation connections are verified by a human and carry no token material.
const (
	ModeOAuth            = "oauth"
	ModeManualInvitation = "manual_invitation"
)

// Verification states for manual invitation connections, kept in metadata.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
)

// Audit actions.
const (
	AuditActionConnect        = "connection.connect"
	AuditActionRefresh        = "connection.refresh"
	AuditActionRevoke         = "connection.revoke"
	AuditActionUpdateMetadata = "connection.update_metadata"
)

// Subscription tiers and the resources they cap.
const (
	TierFree    = "free"
	TierStarter = "starter"
	TierGrowth  = "growth"
	TierScale   = "scale"

	ResourceConnections = "connections"
	ResourceClients     = "clients"
	ResourceMembers     = "members"
)

// Unlimited is the sentinel limit for the top tier.
const Unlimited = -1

// Connection is the durable record that an agency has authorized access to a
// provider. Token material never lives here; SecretRef points into the vault.
type Connection struct {
	ID       int64          `json:"id"`
	AgencyID int64          `json:"agency_id"`
	Provider string         `json:"provider"`
	Mode     string         `json:"mode"`
	Status   string         `json:"status"`
	Scope    string         `json:"scope,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// SecretRef is set if and only if Mode == ModeOAuth. It is an opaque
	// vault key, safe to log and list.
	SecretRef string `json:"-"`

	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`

	ConnectedBy string     `json:"connected_by"`
	ConnectedAt time.Time  `json:"connected_at"`
	RevokedBy   string     `json:"revoked_by,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the connection can serve tokens.
func (c *Connection) IsActive() bool {
	return c.Status == StatusActive
}

// TokenMaterial is the secret payload stored in the vault under a
// connection's SecretRef. It is never logged and never returned by listing
// APIs.
type TokenMaterial struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
}

// Agency is the tenant owning connections.
type Agency struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditEntry records one state-changing operation. Entries are append-only.
type AuditEntry struct {
	ID           string         `json:"id"`
	AgencyID     int64          `json:"agency_id"`
	ConnectionID int64          `json:"connection_id,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Action       string         `json:"action"`
	Actor        string         `json:"actor"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// QuotaCheck is the result of a quota guard evaluation.
type QuotaCheck struct {
	Allowed bool  `json:"allowed"`
	Limit   int64 `json:"limit"`
	Current int64 `json:"current"`
}
