// Package handler exposes the connection lifecycle over HTTP.
package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marketopshq/connecthub/internal/pkg/response"
	"github.com/marketopshq/connecthub/internal/server/middleware"
	"github.com/marketopshq/connecthub/internal/service"
)

// AuditLogReader reads the operational history for display. Writes go through
// the service layer only.
type AuditLogReader interface {
	ListByAgency(ctx context.Context, agencyID int64, limit int) ([]service.AuditEntry, error)
}

// ConnectionHandler handles agency-scoped connection endpoints. The agency is
// always taken from the authenticated subject, never from the request body.
type ConnectionHandler struct {
	connections *service.ConnectionService
	auditLog    AuditLogReader
}

// NewConnectionHandler creates a ConnectionHandler.
func NewConnectionHandler(connections *service.ConnectionService, auditLog AuditLogReader) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		auditLog:    auditLog,
	}
}

// CreateConnectionRequest is the body for connecting a provider. OAuth
// providers require code and redirect_uri; manual invitation providers take
// free-form details instead.
type CreateConnectionRequest struct {
	Code         string         `json:"code"`
	RedirectURI  string         `json:"redirect_uri"`
	CodeVerifier string         `json:"code_verifier"`
	ShopDomain   string         `json:"shop_domain"`
	Details      map[string]any `json:"details"`
}

// UpdateMetadataRequest patches connection metadata. Keys merge shallowly.
type UpdateMetadataRequest struct {
	Metadata map[string]any `json:"metadata" binding:"required"`
}

// ListProviders returns the supported provider identifiers.
// GET /api/v1/providers
func (h *ConnectionHandler) ListProviders(c *gin.Context) {
	response.Success(c, gin.H{"providers": h.connections.Providers()})
}

// Create connects a provider for the caller's agency.
// POST /api/v1/connections/:provider
func (h *ConnectionHandler) Create(c *gin.Context) {
	subject, ok := middleware.GetAuthSubjectFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	conn, err := h.connections.Create(c.Request.Context(), &service.CreateConnectionInput{
		AgencyID:      subject.AgencyID,
		Provider:      providerParam(c),
		AuthCode:      req.Code,
		RedirectURI:   req.RedirectURI,
		CodeVerifier:  req.CodeVerifier,
		ShopDomain:    req.ShopDomain,
		ManualDetails: req.Details,
		ConnectedBy:   subject.Email,
	})
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Created(c, conn)
}

// List returns the caller's connections, most recent row per provider.
// GET /api/v1/connections
func (h *ConnectionHandler) List(c *gin.Context) {
	agencyID := middleware.GetAgencyIDFromContext(c)
	conns, err := h.connections.List(c.Request.Context(), agencyID)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	if conns == nil {
		conns = []service.Connection{}
	}
	response.Success(c, gin.H{"connections": conns})
}

// Get returns the caller's connection for one provider.
// GET /api/v1/connections/:provider
func (h *ConnectionHandler) Get(c *gin.Context) {
	agencyID := middleware.GetAgencyIDFromContext(c)
	conn, err := h.connections.Get(c.Request.Context(), agencyID, providerParam(c))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	if conn == nil {
		response.NotFound(c, "no connection for this provider")
		return
	}
	response.Success(c, conn)
}

// Token returns a live access token for downstream API calls, refreshing it
// first when the policy says so.
// GET /api/v1/connections/:provider/token
func (h *ConnectionHandler) Token(c *gin.Context) {
	agencyID := middleware.GetAgencyIDFromContext(c)
	providerName := providerParam(c)

	token, err := h.connections.GetValidToken(c.Request.Context(), agencyID, providerName)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, gin.H{
		"provider":     providerName,
		"access_token": token,
	})
}

// Revoke disconnects a provider. The vault entry is purged before the row
// flips, so a revoked connection can never serve a token.
// DELETE /api/v1/connections/:provider
func (h *ConnectionHandler) Revoke(c *gin.Context) {
	subject, ok := middleware.GetAuthSubjectFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	conn, err := h.connections.Revoke(c.Request.Context(), subject.AgencyID, providerParam(c), subject.Email)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, conn)
}

// UpdateMetadata patches connection metadata.
// PATCH /api/v1/connections/:provider/metadata
func (h *ConnectionHandler) UpdateMetadata(c *gin.Context) {
	subject, ok := middleware.GetAuthSubjectFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req UpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Metadata) == 0 {
		response.BadRequest(c, "metadata object is required")
		return
	}

	conn, err := h.connections.UpdateMetadata(c.Request.Context(), subject.AgencyID, providerParam(c), req.Metadata, subject.Email)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, conn)
}

// AuditTrail returns recent audit entries for the caller's agency, newest
// first.
// GET /api/v1/audit
func (h *ConnectionHandler) AuditTrail(c *gin.Context) {
	agencyID := middleware.GetAgencyIDFromContext(c)
	_, pageSize := response.ParsePagination(c)

	entries, err := h.auditLog.ListByAgency(c.Request.Context(), agencyID, pageSize)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	if entries == nil {
		entries = []service.AuditEntry{}
	}
	response.Success(c, gin.H{"entries": entries})
}

func providerParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("provider"))
}
