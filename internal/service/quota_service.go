package service

import (
	"context"
	"net/http"

	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
)

// tierLimits is the per-tier resource limit table. Unlimited (-1) marks the
// top tier. Kept as data so pricing changes never touch control flow.
var tierLimits = map[string]map[string]int64{
	TierFree: {
		ResourceConnections: 2,
		ResourceClients:     1,
		ResourceMembers:     2,
	},
	TierStarter: {
		ResourceConnections: 5,
		ResourceClients:     5,
		ResourceMembers:     5,
	},
	TierGrowth: {
		ResourceConnections: 15,
		ResourceClients:     25,
		ResourceMembers:     15,
	},
	TierScale: {
		ResourceConnections: Unlimited,
		ResourceClients:     Unlimited,
		ResourceMembers:     Unlimited,
	},
}

// QuotaService gates resource-creating mutations against the agency's tier.
// It is a pure read-then-compare: the connection store's uniqueness
// constraints remain the backstop under concurrent creates.
type QuotaService struct {
	agencyRepo     AgencyRepository
	connectionRepo ConnectionRepository
}

// NewQuotaService creates the quota guard.
func NewQuotaService(agencyRepo AgencyRepository, connectionRepo ConnectionRepository) *QuotaService {
	return &QuotaService{agencyRepo: agencyRepo, connectionRepo: connectionRepo}
}

// Check compares current usage of a resource against the agency tier's limit.
func (s *QuotaService) Check(ctx context.Context, agencyID int64, resource string) (*QuotaCheck, error) {
	tier, err := s.agencyRepo.ActiveTier(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	limits, ok := tierLimits[tier]
	if !ok {
		limits = tierLimits[TierFree]
	}
	limit, ok := limits[resource]
	if !ok {
		return nil, infraerrors.Newf(http.StatusBadRequest, "UNKNOWN_RESOURCE", "unknown quota resource %q", resource)
	}

	current, err := s.currentUsage(ctx, agencyID, resource)
	if err != nil {
		return nil, err
	}

	return &QuotaCheck{
		Allowed: limit == Unlimited || current < limit,
		Limit:   limit,
		Current: current,
	}, nil
}

// Enforce fails with TIER_LIMIT_EXCEEDED when the resource is at its cap.
func (s *QuotaService) Enforce(ctx context.Context, agencyID int64, resource string) error {
	check, err := s.Check(ctx, agencyID, resource)
	if err != nil {
		return err
	}
	if !check.Allowed {
		return infraerrors.Newf(http.StatusForbidden, "TIER_LIMIT_EXCEEDED",
			"agency %d reached its %s limit (%d)", agencyID, resource, check.Limit)
	}
	return nil
}

func (s *QuotaService) currentUsage(ctx context.Context, agencyID int64, resource string) (int64, error) {
	switch resource {
	case ResourceConnections:
		return s.connectionRepo.CountActiveByAgency(ctx, agencyID)
	case ResourceClients:
		return s.agencyRepo.CountClients(ctx, agencyID)
	case ResourceMembers:
		return s.agencyRepo.CountMembers(ctx, agencyID)
	default:
		return 0, infraerrors.Newf(http.StatusBadRequest, "UNKNOWN_RESOURCE", "unknown quota resource %q", resource)
	}
}
