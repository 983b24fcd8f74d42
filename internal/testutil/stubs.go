//go:build unit

// Package testutil provides stubs, fixtures and helpers shared by unit tests.
// Every file carries the unit build tag so nothing here reaches production
// builds.
package testutil

import (
	"context"
	"time"

	"github.com/marketopshq/connecthub/internal/service"
)

var _ service.SecretVault = StubSecretVault{}

// StubSecretVault is a no-op vault. Put always mints the same reference; Get
// always misses.
type StubSecretVault struct{}

func (StubSecretVault) Put(context.Context, *service.TokenMaterial) (string, error) {
	return "sec_stub", nil
}
func (StubSecretVault) Get(context.Context, string) (*service.TokenMaterial, error) {
	return nil, nil
}
func (StubSecretVault) Update(context.Context, string, *service.TokenMaterial) error { return nil }
func (StubSecretVault) Delete(context.Context, string) error                         { return nil }

var _ service.AuditRecorder = StubAuditRecorder{}

// StubAuditRecorder swallows every entry.
type StubAuditRecorder struct{}

func (StubAuditRecorder) Append(context.Context, *service.AuditEntry) error { return nil }

var _ service.ConnectionListCache = StubConnectionListCache{}

// StubConnectionListCache never hits and never fails.
type StubConnectionListCache struct{}

func (StubConnectionListCache) Get(context.Context, int64) ([]service.Connection, error) {
	return nil, nil
}
func (StubConnectionListCache) Set(context.Context, int64, []service.Connection) error { return nil }
func (StubConnectionListCache) Invalidate(context.Context, int64) error                { return nil }

var _ service.AgencyRepository = StubAgencyRepository{}

// StubAgencyRepository resolves every agency to a free-tier tenant with no
// usage.
type StubAgencyRepository struct{}

func (StubAgencyRepository) GetByID(_ context.Context, id int64) (*service.Agency, error) {
	return &service.Agency{ID: id, Name: "Stub Agency", CreatedAt: time.Now(), UpdatedAt: time.Now()}, nil
}
func (StubAgencyRepository) ActiveTier(context.Context, int64) (string, error) {
	return service.TierFree, nil
}
func (StubAgencyRepository) CountClients(context.Context, int64) (int64, error) { return 0, nil }
func (StubAgencyRepository) CountMembers(context.Context, int64) (int64, error) { return 0, nil }
