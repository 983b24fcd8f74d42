//go:build unit

package testutil

import (
	"time"

	"github.com/marketopshq/connecthub/internal/service"
)

// NewTestConnection creates a usable active OAuth connection; override
// defaults via opts.
func NewTestConnection(opts ...func(*service.Connection)) *service.Connection {
	expiry := time.Now().Add(30 * 24 * time.Hour)
	c := &service.Connection{
		ID:          1,
		AgencyID:    1,
		Provider:    "google",
		Mode:        service.ModeOAuth,
		Status:      service.StatusActive,
		Scope:       "ads.readonly",
		SecretRef:   "sec_test_ref",
		ExpiresAt:   &expiry,
		ConnectedBy: "ops@agency.io",
		ConnectedAt: time.Now(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTestAgency creates a test agency; override defaults via opts.
func NewTestAgency(opts ...func(*service.Agency)) *service.Agency {
	a := &service.Agency{
		ID:        1,
		Name:      "Test Agency",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewTestTokenMaterial creates vault token material; override via opts.
func NewTestTokenMaterial(opts ...func(*service.TokenMaterial)) *service.TokenMaterial {
	expiry := time.Now().Add(30 * 24 * time.Hour)
	m := &service.TokenMaterial{
		AccessToken:  "at-test",
		RefreshToken: "rt-test",
		ExpiresAt:    &expiry,
		Scope:        "ads.readonly",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewTestAuditEntry creates an audit entry; override via opts.
func NewTestAuditEntry(opts ...func(*service.AuditEntry)) *service.AuditEntry {
	e := &service.AuditEntry{
		ID:           "00000000-0000-0000-0000-000000000001",
		AgencyID:     1,
		ConnectionID: 1,
		Provider:     "google",
		Action:       service.AuditActionConnect,
		Actor:        "ops@agency.io",
		CreatedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
