package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
	"github.com/marketopshq/connecthub/internal/provider"
	"github.com/marketopshq/connecthub/internal/util/urlvalidator"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ConnectionService orchestrates the connection lifecycle. It is the only
// entry point other subsystems use; everything it needs is behind the
// collaborator interfaces so callers and tests swap implementations freely.
type ConnectionService struct {
	registry   *provider.Registry
	connectors *provider.ConnectorSet

	connectionRepo ConnectionRepository
	agencyRepo     AgencyRepository
	vault          SecretVault
	audit          AuditRecorder
	quota          *QuotaService
	listCache      ConnectionListCache

	logger *zap.Logger

	// refreshGroup serializes refreshes per (agency, provider): concurrent
	// readers of a due connection share one provider call and its result.
	refreshGroup singleflight.Group
}

// NewConnectionService wires the service.
func NewConnectionService(
	registry *provider.Registry,
	connectors *provider.ConnectorSet,
	connectionRepo ConnectionRepository,
	agencyRepo AgencyRepository,
	vault SecretVault,
	audit AuditRecorder,
	quota *QuotaService,
	listCache ConnectionListCache,
	logger *zap.Logger,
) *ConnectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionService{
		registry:       registry,
		connectors:     connectors,
		connectionRepo: connectionRepo,
		agencyRepo:     agencyRepo,
		vault:          vault,
		audit:          audit,
		quota:          quota,
		listCache:      listCache,
		logger:         logger,
	}
}

// CreateConnectionInput carries everything Create may need. AuthCode is set
// for OAuth providers, ManualDetails for manual invitation ones.
type CreateConnectionInput struct {
	AgencyID int64
	Provider string

	AuthCode     string
	RedirectURI  string
	CodeVerifier string
	ShopDomain   string

	ManualDetails map[string]any

	ConnectedBy string
}

// Create establishes a connection for (agency, provider). For OAuth providers
// it exchanges the code, applies the long-lived exchange where required,
// writes token material to the vault and only then the connection row, so no
// row ever references a missing secret. A row write failure triggers a
// compensating vault delete; callers may treat Create as all-or-nothing.
func (s *ConnectionService) Create(ctx context.Context, in *CreateConnectionInput) (*Connection, error) {
	desc, err := s.registry.Describe(in.Provider)
	if err != nil {
		return nil, err
	}
	if err := validateModeMatch(desc, in); err != nil {
		return nil, err
	}

	agency, err := s.agencyRepo.GetByID(ctx, in.AgencyID)
	if err != nil {
		return nil, err
	}
	if agency == nil {
		return nil, infraerrors.Newf(http.StatusNotFound, "AGENCY_NOT_FOUND", "agency %d not found", in.AgencyID)
	}

	// Fast-path existence check; the store's partial unique index is the
	// backstop under concurrent creates.
	existing, err := s.connectionRepo.GetActive(ctx, in.AgencyID, in.Provider)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, alreadyConnected(in.Provider)
	}

	if err := s.quota.Enforce(ctx, in.AgencyID, ResourceConnections); err != nil {
		return nil, err
	}

	var conn *Connection
	if desc.Mode == provider.ModeOAuth {
		conn, err = s.createOAuth(ctx, desc, in)
	} else {
		conn, err = s.createManual(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &AuditEntry{
		AgencyID:     conn.AgencyID,
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		Action:       AuditActionConnect,
		Actor:        in.ConnectedBy,
		Metadata:     map[string]any{"mode": conn.Mode, "scope": conn.Scope},
	})
	s.invalidateList(ctx, conn.AgencyID)

	return conn, nil
}

func (s *ConnectionService) createOAuth(ctx context.Context, desc provider.Descriptor, in *CreateConnectionInput) (*Connection, error) {
	connector, err := s.connectors.Resolve(in.Provider)
	if err != nil {
		return nil, err
	}

	if in.RedirectURI != "" {
		// The URI must match what the consent dialog used; normalization only
		// strips trailing slashes. http stays allowed for local callbacks.
		normalized, err := urlvalidator.ValidateURLFormat(in.RedirectURI, true)
		if err != nil {
			return nil, infraerrors.Newf(http.StatusBadRequest, "INVALID_REDIRECT_URI", "redirect_uri: %v", err)
		}
		in.RedirectURI = normalized
	}

	tokens, err := connector.Exchange(ctx, provider.ExchangeInput{
		Code:         in.AuthCode,
		RedirectURI:  in.RedirectURI,
		CodeVerifier: in.CodeVerifier,
		ShopDomain:   in.ShopDomain,
	})
	if err != nil {
		return nil, err
	}

	if desc.RequiresLongLivedExchange {
		exchanger, ok := connector.(provider.LongLivedExchanger)
		if !ok {
			return nil, infraerrors.Newf(http.StatusInternalServerError, "PROVIDER_EXCHANGE_FAILED",
				"provider %s requires a long-lived exchange but its connector cannot perform one", in.Provider)
		}
		tokens, err = exchanger.ExchangeLongLived(ctx, tokens)
		if err != nil {
			return nil, err
		}
	}

	scope := tokens.Scope
	if scope == "" {
		scope = strings.Join(desc.DefaultScopes, desc.ScopeSeparator)
	}

	metadata := map[string]any{}
	if in.ShopDomain != "" {
		metadata["shop_domain"] = in.ShopDomain
	}
	if identity := s.resolveIdentity(ctx, connector, desc, tokens, in.ShopDomain); identity != nil {
		metadata["external_id"] = identity.ExternalID
		if identity.Email != "" {
			metadata["external_email"] = identity.Email
		}
		if identity.DisplayName != "" {
			metadata["external_name"] = identity.DisplayName
		}
	}

	// Vault write must complete and return a valid reference before the row
	// is written.
	ref, err := s.vault.Put(ctx, &TokenMaterial{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Scope:        scope,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	conn := &Connection{
		AgencyID:    in.AgencyID,
		Provider:    in.Provider,
		Mode:        ModeOAuth,
		Status:      StatusActive,
		SecretRef:   ref,
		Scope:       scope,
		Metadata:    metadata,
		ExpiresAt:   tokens.ExpiresAt,
		ConnectedBy: in.ConnectedBy,
		ConnectedAt: now,
	}
	if err := s.connectionRepo.Create(ctx, conn); err != nil {
		s.compensateVaultWrite(ctx, in, ref)
		return nil, err
	}
	return conn, nil
}

func (s *ConnectionService) createManual(ctx context.Context, in *CreateConnectionInput) (*Connection, error) {
	metadata := map[string]any{"verification_status": VerificationPending}
	for k, v := range in.ManualDetails {
		metadata[k] = v
	}

	conn := &Connection{
		AgencyID:    in.AgencyID,
		Provider:    in.Provider,
		Mode:        ModeManualInvitation,
		Status:      StatusActive,
		Metadata:    metadata,
		ConnectedBy: in.ConnectedBy,
		ConnectedAt: time.Now(),
	}
	if err := s.connectionRepo.Create(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// compensateVaultWrite cleans up an orphaned vault entry after a failed row
// write. A failed cleanup is recorded in the audit trail so the orphan can be
// reaped operationally.
func (s *ConnectionService) compensateVaultWrite(ctx context.Context, in *CreateConnectionInput, ref string) {
	if err := s.vault.Delete(context.WithoutCancel(ctx), ref); err != nil {
		s.logger.Error("compensating vault delete failed; secret orphaned",
			zap.Int64("agency_id", in.AgencyID),
			zap.String("provider", in.Provider),
			zap.String("secret_ref", ref),
			zap.Error(err))
		s.recordAudit(ctx, &AuditEntry{
			AgencyID: in.AgencyID,
			Provider: in.Provider,
			Action:   AuditActionConnect,
			Actor:    in.ConnectedBy,
			Metadata: map[string]any{"error": "orphaned vault entry", "secret_ref": ref},
		})
	}
}

// Get returns the connection for (agency, provider), any status, or
// (nil, nil) when none exists.
func (s *ConnectionService) Get(ctx context.Context, agencyID int64, providerName string) (*Connection, error) {
	return s.connectionRepo.GetByAgencyAndProvider(ctx, agencyID, providerName)
}

// List returns the agency's connections, served from the list cache when
// warm. Token material is never part of the listing.
func (s *ConnectionService) List(ctx context.Context, agencyID int64) ([]Connection, error) {
	if cached, err := s.listCache.Get(ctx, agencyID); err == nil && cached != nil {
		return cached, nil
	}
	conns, err := s.connectionRepo.ListByAgency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if err := s.listCache.Set(ctx, agencyID, conns); err != nil {
		s.logger.Warn("connection list cache set failed", zap.Int64("agency_id", agencyID), zap.Error(err))
	}
	return conns, nil
}

// GetValidToken returns a live access token for the connection, refreshing
// through the provider first when the policy says so. Safe to call
// concurrently for the same (agency, provider): one refresh reaches the
// provider, every waiter receives its result.
func (s *ConnectionService) GetValidToken(ctx context.Context, agencyID int64, providerName string) (string, error) {
	conn, err := s.connectionRepo.GetByAgencyAndProvider(ctx, agencyID, providerName)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", connectionNotFound(agencyID, providerName)
	}
	if !conn.IsActive() {
		return "", connectionNotActive(providerName, conn.Status)
	}
	if conn.Mode != ModeOAuth {
		return "", infraerrors.Newf(http.StatusBadRequest, "CONNECTION_NOT_OAUTH",
			"%s connection uses manual invitation and holds no token material", providerName)
	}

	desc, err := s.registry.Describe(providerName)
	if err != nil {
		return "", err
	}

	now := time.Now()
	switch ShouldRefresh(conn, desc, now) {
	case DecisionCannotRefresh:
		if IsPastExpiry(conn, now) {
			return "", tokenExpired(providerName)
		}
		return s.readAccessToken(ctx, conn)
	case DecisionSkip:
		return s.readAccessToken(ctx, conn)
	}

	return s.refreshAndRead(ctx, conn, desc)
}

// refreshAndRead funnels concurrent callers through one in-flight refresh per
// connection. The refresh body runs on a non-cancellable context: once a
// provider refresh is underway it is allowed to finish and persist, because a
// half-applied refresh (provider rotated the refresh token, we stored
// nothing) is worse than finishing work for a caller that left.
func (s *ConnectionService) refreshAndRead(ctx context.Context, conn *Connection, desc provider.Descriptor) (string, error) {
	key := refreshKey(conn.AgencyID, conn.Provider)
	token, err, _ := s.refreshGroup.Do(key, func() (any, error) {
		return s.refreshConnection(context.WithoutCancel(ctx), conn.AgencyID, conn.Provider, desc)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *ConnectionService) refreshConnection(ctx context.Context, agencyID int64, providerName string, desc provider.Descriptor) (string, error) {
	// Re-read inside the flight: a refresh that just completed on another
	// call may already have pushed the expiry out.
	conn, err := s.connectionRepo.GetByAgencyAndProvider(ctx, agencyID, providerName)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", connectionNotFound(agencyID, providerName)
	}
	if !conn.IsActive() {
		return "", connectionNotActive(providerName, conn.Status)
	}

	material, err := s.vault.Get(ctx, conn.SecretRef)
	if err != nil {
		return "", err
	}
	if material == nil {
		return "", tokenNotFound(conn)
	}

	now := time.Now()
	if ShouldRefresh(conn, desc, now) != DecisionRefresh {
		return material.AccessToken, nil
	}

	if material.RefreshToken == "" {
		// Granted without a refresh token (consent screen variant); nothing
		// to refresh with.
		if IsPastExpiry(conn, now) {
			return "", tokenExpired(providerName)
		}
		return material.AccessToken, nil
	}

	connector, err := s.connectors.Resolve(providerName)
	if err != nil {
		return "", err
	}
	refreshed, err := connector.Refresh(ctx, &provider.Tokens{
		AccessToken:  material.AccessToken,
		RefreshToken: material.RefreshToken,
		ExpiresAt:    material.ExpiresAt,
		Scope:        material.Scope,
	})
	if err != nil {
		// The refresh token is dead too; past expiry that means the
		// connection needs re-authorization, not a transient retry.
		if IsPastExpiry(conn, now) {
			return "", tokenExpired(providerName).WithCause(err)
		}
		return "", err
	}

	scope := refreshed.Scope
	if scope == "" {
		scope = material.Scope
	}
	// Update in place: the connection keeps its SecretRef across refreshes.
	if err := s.vault.Update(ctx, conn.SecretRef, &TokenMaterial{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		ExpiresAt:    refreshed.ExpiresAt,
		Scope:        scope,
	}); err != nil {
		return "", err
	}

	refreshedAt := time.Now()
	conn.ExpiresAt = refreshed.ExpiresAt
	conn.LastRefreshedAt = &refreshedAt
	if err := s.connectionRepo.Update(ctx, conn); err != nil {
		// Vault already holds the new material; record the half-applied
		// refresh so the history stays reconstructable, then surface the
		// error rather than hand out a token whose recorded expiry is stale.
		s.recordAudit(ctx, &AuditEntry{
			AgencyID:     conn.AgencyID,
			ConnectionID: conn.ID,
			Provider:     conn.Provider,
			Action:       AuditActionRefresh,
			Actor:        "system",
			Metadata:     map[string]any{"error": "vault updated but row update failed"},
		})
		return "", err
	}

	s.recordAudit(ctx, &AuditEntry{
		AgencyID:     conn.AgencyID,
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		Action:       AuditActionRefresh,
		Actor:        "system",
		Metadata:     map[string]any{"expires_at": formatExpiry(refreshed.ExpiresAt)},
	})
	s.invalidateList(ctx, conn.AgencyID)

	return refreshed.AccessToken, nil
}

// Revoke purges the vault entry and marks the connection revoked. The vault
// delete runs first: leaving live credentials behind is the worse failure
// mode, and deleting an already-absent secret is not an error.
func (s *ConnectionService) Revoke(ctx context.Context, agencyID int64, providerName, revokedBy string) (*Connection, error) {
	conn, err := s.connectionRepo.GetByAgencyAndProvider(ctx, agencyID, providerName)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, connectionNotFound(agencyID, providerName)
	}
	if conn.Status == StatusRevoked {
		return nil, connectionNotActive(providerName, conn.Status)
	}

	if conn.SecretRef != "" {
		if err := s.vault.Delete(ctx, conn.SecretRef); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	conn.Status = StatusRevoked
	conn.RevokedBy = revokedBy
	conn.RevokedAt = &now
	if err := s.connectionRepo.Update(ctx, conn); err != nil {
		// The secret is already gone; record the half-applied revoke so the
		// history stays reconstructable, then surface the failure.
		s.recordAudit(ctx, &AuditEntry{
			AgencyID:     conn.AgencyID,
			ConnectionID: conn.ID,
			Provider:     conn.Provider,
			Action:       AuditActionRevoke,
			Actor:        revokedBy,
			Metadata:     map[string]any{"error": "vault purged but row update failed"},
		})
		return nil, err
	}

	s.recordAudit(ctx, &AuditEntry{
		AgencyID:     conn.AgencyID,
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		Action:       AuditActionRevoke,
		Actor:        revokedBy,
	})
	s.invalidateList(ctx, agencyID)

	return conn, nil
}

// UpdateMetadata shallow-merges patch into the connection's metadata,
// last-write-wins per key. Token material is never touched here.
func (s *ConnectionService) UpdateMetadata(ctx context.Context, agencyID int64, providerName string, patch map[string]any, actor string) (*Connection, error) {
	conn, err := s.connectionRepo.GetByAgencyAndProvider(ctx, agencyID, providerName)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, connectionNotFound(agencyID, providerName)
	}

	if conn.Metadata == nil {
		conn.Metadata = make(map[string]any, len(patch))
	}
	keys := make([]string, 0, len(patch))
	for k, v := range patch {
		conn.Metadata[k] = v
		keys = append(keys, k)
	}
	if err := s.connectionRepo.Update(ctx, conn); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &AuditEntry{
		AgencyID:     conn.AgencyID,
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		Action:       AuditActionUpdateMetadata,
		Actor:        actor,
		Metadata:     map[string]any{"keys": keys},
	})
	s.invalidateList(ctx, agencyID)

	return conn, nil
}

// Providers lists the registered provider identifiers.
func (s *ConnectionService) Providers() []string {
	return s.registry.List()
}

func (s *ConnectionService) readAccessToken(ctx context.Context, conn *Connection) (string, error) {
	material, err := s.vault.Get(ctx, conn.SecretRef)
	if err != nil {
		return "", err
	}
	if material == nil {
		return "", tokenNotFound(conn)
	}
	return material.AccessToken, nil
}

// resolveIdentity prefers claims already present in an OIDC id_token and
// falls back to the provider's identity endpoint. Identity is metadata
// enrichment on create; a fetch failure is logged, not fatal.
func (s *ConnectionService) resolveIdentity(ctx context.Context, connector provider.Connector, desc provider.Descriptor, tokens *provider.Tokens, shopDomain string) *provider.Identity {
	if tokens.Identity != nil {
		return tokens.Identity
	}

	var (
		identity *provider.Identity
		err      error
	)
	if desc.RequiresShopContext {
		fetcher, ok := connector.(provider.ShopIdentityFetcher)
		if !ok {
			return nil
		}
		identity, err = fetcher.FetchShopIdentity(ctx, tokens.AccessToken, shopDomain)
	} else {
		identity, err = connector.FetchIdentity(ctx, tokens.AccessToken)
	}
	if err != nil {
		s.logger.Warn("identity fetch failed; connection created without identity metadata",
			zap.String("provider", desc.Name), zap.Error(err))
		return nil
	}
	return identity
}

// recordAudit writes an audit entry. Audit failures never fail the operation
// they describe; they are logged and the operation's own result stands.
func (s *ConnectionService) recordAudit(ctx context.Context, entry *AuditEntry) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	if err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("audit append failed",
			zap.Int64("agency_id", entry.AgencyID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func (s *ConnectionService) invalidateList(ctx context.Context, agencyID int64) {
	if err := s.listCache.Invalidate(context.WithoutCancel(ctx), agencyID); err != nil {
		s.logger.Warn("connection list cache invalidation failed", zap.Int64("agency_id", agencyID), zap.Error(err))
	}
}

func validateModeMatch(desc provider.Descriptor, in *CreateConnectionInput) error {
	requestsManual := in.AuthCode == ""
	switch {
	case desc.Mode == provider.ModeOAuth && requestsManual:
		return infraerrors.Newf(http.StatusBadRequest, "UNSUPPORTED_PROVIDER",
			"provider %s requires an OAuth authorization code", desc.Name)
	case desc.Mode == provider.ModeManualInvitation && !requestsManual:
		return infraerrors.Newf(http.StatusBadRequest, "UNSUPPORTED_PROVIDER",
			"provider %s uses manual invitation, not OAuth", desc.Name)
	}
	return nil
}

func refreshKey(agencyID int64, providerName string) string {
	return fmt.Sprintf("%d:%s", agencyID, providerName)
}

func connectionNotFound(agencyID int64, providerName string) *infraerrors.Error {
	return infraerrors.Newf(http.StatusNotFound, "CONNECTION_NOT_FOUND",
		"agency %d has no %s connection", agencyID, providerName)
}

func connectionNotActive(providerName, status string) *infraerrors.Error {
	return infraerrors.Newf(http.StatusConflict, "CONNECTION_NOT_ACTIVE",
		"%s connection is %s", providerName, status)
}

func alreadyConnected(providerName string) *infraerrors.Error {
	return infraerrors.Newf(http.StatusConflict, "ALREADY_CONNECTED",
		"an active %s connection already exists", providerName)
}

func tokenExpired(providerName string) *infraerrors.Error {
	return infraerrors.Newf(http.StatusUnauthorized, "TOKEN_EXPIRED",
		"%s token has expired and cannot be refreshed; re-authorization required", providerName)
}

// tokenNotFound flags a vault miss for a supposedly active connection. This
// is a consistency violation, not a user error, so it surfaces as a 500.
func tokenNotFound(conn *Connection) *infraerrors.Error {
	return infraerrors.Newf(http.StatusInternalServerError, "TOKEN_NOT_FOUND",
		"vault holds no material for active %s connection %d", conn.Provider, conn.ID)
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
