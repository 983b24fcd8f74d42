package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/imroc/req/v3"
	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
	"github.com/marketopshq/connecthub/internal/util/logredact"
	"github.com/tidwall/gjson"
)

// upstreamTimeout bounds every call to a provider token or identity endpoint.
// Provider calls are never retried here; a failure surfaces to the caller.
const upstreamTimeout = 15 * time.Second

// Tokens is the normalized token material shared by all connectors.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time // nil for non-expiring tokens
	Scope        string

	// Identity is populated during normalization when the provider returned
	// an OIDC id_token alongside the access token. It is advisory and never
	// persisted with the token material; callers without it use FetchIdentity.
	Identity *Identity
}

// Identity identifies the external account a token belongs to.
type Identity struct {
	ExternalID  string
	Email       string
	DisplayName string
}

// ExchangeInput carries everything an initial code exchange may need.
// CodeVerifier is set for PKCE providers, ShopDomain for shop-scoped ones.
type ExchangeInput struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
	ShopDomain   string
}

// Connector is the capability interface every provider family implements.
// Implementations are stateless and shared between goroutines.
type Connector interface {
	// Provider returns the registry identifier this connector serves.
	Provider() string

	// Normalize absorbs the provider's raw token response shape. Providers
	// that omit expires_in fall back to the descriptor's default lifetime.
	Normalize(raw []byte) (*Tokens, error)

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, in ExchangeInput) (*Tokens, error)

	// Refresh trades a refresh token for fresh tokens. Connectors whose
	// descriptor declares supports_refresh_tokens=false return
	// REFRESH_UNSUPPORTED.
	Refresh(ctx context.Context, current *Tokens) (*Tokens, error)

	// FetchIdentity proves a token is live and returns who it belongs to.
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// LongLivedExchanger is implemented by connectors whose descriptor declares
// requires_long_lived_exchange. It converts the short-lived token returned by
// the initial exchange into a long-lived one.
type LongLivedExchanger interface {
	ExchangeLongLived(ctx context.Context, shortLived *Tokens) (*Tokens, error)
}

// ShopIdentityFetcher is implemented by connectors whose descriptor declares
// requires_shop_context; identity endpoints on those providers are addressed
// per shop rather than per token.
type ShopIdentityFetcher interface {
	FetchShopIdentity(ctx context.Context, accessToken, shopDomain string) (*Identity, error)
}

// ClientCredentials are the app credentials registered with one provider.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// ErrRefreshUnsupported is returned by connectors that cannot refresh.
func ErrRefreshUnsupported(provider string) error {
	return infraerrors.Newf(http.StatusConflict, "REFRESH_UNSUPPORTED", "provider %s does not support token refresh", provider)
}

func exchangeFailed(provider string, status int, body string) error {
	return infraerrors.Newf(http.StatusBadGateway, "PROVIDER_EXCHANGE_FAILED",
		"provider %s token endpoint returned status %d: %s", provider, status, logredact.RedactText(strings.TrimSpace(body)))
}

func exchangeRequestFailed(provider string, err error) error {
	return infraerrors.Newf(http.StatusBadGateway, "PROVIDER_EXCHANGE_FAILED",
		"provider %s token request failed: %v", provider, err).WithCause(err)
}

func identityFetchFailed(provider string, err error) error {
	return infraerrors.Newf(http.StatusBadGateway, "IDENTITY_FETCH_FAILED",
		"provider %s identity fetch failed: %v", provider, err).WithCause(err)
}

func identityFetchFailedStatus(provider string, status int, body string) error {
	return infraerrors.Newf(http.StatusBadGateway, "IDENTITY_FETCH_FAILED",
		"provider %s identity endpoint returned status %d: %s", provider, status, logredact.RedactText(strings.TrimSpace(body)))
}

// newUpstreamClient builds the shared req client used for provider calls.
func newUpstreamClient() *req.Client {
	return req.C().
		SetTimeout(upstreamTimeout).
		SetUserAgent("connecthub/1.0")
}

// normalizeTokenResponse extracts the common OAuth2 fields out of a raw token
// payload. Field naming differs between providers (data envelopes, expires vs
// expires_in); gjson paths with fallbacks absorb that here.
func normalizeTokenResponse(desc Descriptor, raw []byte, now time.Time) (*Tokens, error) {
	body := gjson.ParseBytes(raw)

	access := firstString(body, "access_token", "data.access_token")
	if access == "" {
		return nil, infraerrors.Newf(http.StatusBadGateway, "PROVIDER_EXCHANGE_FAILED",
			"provider %s token response missing access_token", desc.Name)
	}

	tokens := &Tokens{
		AccessToken:  access,
		RefreshToken: firstString(body, "refresh_token", "data.refresh_token"),
		Scope:        firstString(body, "scope", "data.scope"),
	}

	if expiresIn := firstInt(body, "expires_in", "data.expires_in"); expiresIn > 0 {
		t := now.Add(time.Duration(expiresIn) * time.Second)
		tokens.ExpiresAt = &t
	} else if desc.DefaultTokenLifetime > 0 {
		t := now.Add(desc.DefaultTokenLifetime)
		tokens.ExpiresAt = &t
	}

	tokens.Identity = identityFromIDToken(raw)

	return tokens, nil
}

// identityFromIDToken pulls identity claims out of an OIDC id_token without
// verifying the signature. The token arrived over TLS from the provider's own
// token endpoint, so this is claim extraction, not authentication.
func identityFromIDToken(raw []byte) *Identity {
	idToken := gjson.GetBytes(raw, "id_token").String()
	if idToken == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil
	}
	identity := &Identity{}
	if sub, ok := claims["sub"].(string); ok {
		identity.ExternalID = sub
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		identity.DisplayName = name
	}
	if identity.ExternalID == "" && identity.Email == "" {
		return nil
	}
	return identity
}

func firstString(body gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := body.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstInt(body gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if v := body.Get(p); v.Exists() {
			return v.Int()
		}
	}
	return 0
}
