package service

import (
	"time"

	"github.com/marketopshq/connecthub/internal/provider"
)

// DefaultRefreshThreshold is how far ahead of expiry a token is refreshed.
// These are long-lived background credentials; refreshing days early
// tolerates scheduler jitter and keeps synchronous last-moment refreshes off
// the read path. Descriptors for short-lived token models override it.
const DefaultRefreshThreshold = 5 * 24 * time.Hour

// Decision is the outcome of the refresh policy.
type Decision int

const (
	// DecisionSkip means the token is usable as-is.
	DecisionSkip Decision = iota
	// DecisionRefresh means a refresh should run before the token is handed
	// out. This includes tokens already past expiry: the refresh token is
	// stored alongside the access token and may outlive it, so the caller
	// attempts a refresh-token grant and reports expiry only if that fails.
	DecisionRefresh
	// DecisionCannotRefresh means the provider has no refresh grant; a stale
	// token requires re-authorization.
	DecisionCannotRefresh
)

func (d Decision) String() string {
	switch d {
	case DecisionRefresh:
		return "refresh"
	case DecisionCannotRefresh:
		return "cannot_refresh"
	default:
		return "skip"
	}
}

// RefreshThresholdFor resolves the effective threshold for one provider.
func RefreshThresholdFor(desc provider.Descriptor) time.Duration {
	if desc.RefreshThreshold > 0 {
		return desc.RefreshThreshold
	}
	return DefaultRefreshThreshold
}

// ShouldRefresh decides whether a connection's token needs a refresh at the
// given instant. Pure function; rule order matters:
//
//  1. no refresh grant            -> cannot_refresh
//  2. no recorded expiry          -> skip (non-expiring token model)
//  3. at or past expiry           -> refresh (refresh token may still work)
//  4. within the threshold window -> refresh
//  5. otherwise                   -> skip
func ShouldRefresh(conn *Connection, desc provider.Descriptor, now time.Time) Decision {
	if !desc.SupportsRefreshTokens {
		return DecisionCannotRefresh
	}
	if conn.ExpiresAt == nil {
		return DecisionSkip
	}
	if !now.Before(*conn.ExpiresAt) {
		return DecisionRefresh
	}
	if conn.ExpiresAt.Sub(now) <= RefreshThresholdFor(desc) {
		return DecisionRefresh
	}
	return DecisionSkip
}

// IsPastExpiry reports whether the connection's token expiry has passed.
func IsPastExpiry(conn *Connection, now time.Time) bool {
	return conn.ExpiresAt != nil && !now.Before(*conn.ExpiresAt)
}
