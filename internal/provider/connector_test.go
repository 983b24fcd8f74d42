//go:build unit

package provider

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNormalizeTokenResponse_StandardShape(t *testing.T) {
	desc := Descriptor{Name: "acme"}
	tokens, err := normalizeTokenResponse(desc, []byte(`{
		"access_token": "at-1",
		"refresh_token": "rt-1",
		"expires_in": 3600,
		"scope": "ads.readonly"
	}`), testNow)
	require.NoError(t, err)

	assert.Equal(t, "at-1", tokens.AccessToken)
	assert.Equal(t, "rt-1", tokens.RefreshToken)
	assert.Equal(t, "ads.readonly", tokens.Scope)
	require.NotNil(t, tokens.ExpiresAt)
	assert.Equal(t, testNow.Add(time.Hour), *tokens.ExpiresAt)
	assert.Nil(t, tokens.Identity)
}

func TestNormalizeTokenResponse_DataEnvelope(t *testing.T) {
	// TikTok wraps the token payload in a data object.
	desc := Descriptor{Name: TikTokAds}
	tokens, err := normalizeTokenResponse(desc, []byte(`{
		"code": 0,
		"data": {
			"access_token": "at-tt",
			"refresh_token": "rt-tt",
			"scope": "ad.read"
		}
	}`), testNow)
	require.NoError(t, err)

	assert.Equal(t, "at-tt", tokens.AccessToken)
	assert.Equal(t, "rt-tt", tokens.RefreshToken)
	assert.Equal(t, "ad.read", tokens.Scope)
}

func TestNormalizeTokenResponse_DefaultLifetimeFallback(t *testing.T) {
	desc := Descriptor{Name: TikTokAds, DefaultTokenLifetime: 24 * time.Hour}
	tokens, err := normalizeTokenResponse(desc, []byte(`{"access_token":"at"}`), testNow)
	require.NoError(t, err)

	require.NotNil(t, tokens.ExpiresAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *tokens.ExpiresAt)
}

func TestNormalizeTokenResponse_NonExpiring(t *testing.T) {
	// Mailchimp returns expires_in 0 and declares no default lifetime.
	desc := Descriptor{Name: Mailchimp}
	tokens, err := normalizeTokenResponse(desc, []byte(`{"access_token":"at","expires_in":0}`), testNow)
	require.NoError(t, err)
	assert.Nil(t, tokens.ExpiresAt)
}

func TestNormalizeTokenResponse_MissingAccessToken(t *testing.T) {
	desc := Descriptor{Name: "acme"}
	_, err := normalizeTokenResponse(desc, []byte(`{"error":"invalid_grant"}`), testNow)
	require.Error(t, err)
	assert.Equal(t, "PROVIDER_EXCHANGE_FAILED", infraerrors.Code(err))
}

func TestNormalizeTokenResponse_IDTokenIdentity(t *testing.T) {
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-123",
		"email": "owner@client.example",
		"name":  "Client Owner",
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	desc := Descriptor{Name: Google}
	tokens, err := normalizeTokenResponse(desc, []byte(`{
		"access_token": "at",
		"id_token": "`+idToken+`"
	}`), testNow)
	require.NoError(t, err)

	require.NotNil(t, tokens.Identity)
	assert.Equal(t, "user-123", tokens.Identity.ExternalID)
	assert.Equal(t, "owner@client.example", tokens.Identity.Email)
	assert.Equal(t, "Client Owner", tokens.Identity.DisplayName)
}

func TestIdentityFromIDToken_Garbage(t *testing.T) {
	assert.Nil(t, identityFromIDToken([]byte(`{"id_token":"not.a.jwt"}`)))
	assert.Nil(t, identityFromIDToken([]byte(`{}`)))
}

func TestNewConnectorSet_CoversOAuthProvidersOnly(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	set := NewConnectorSet(registry, nil)

	for _, name := range []string{Google, Meta, LinkedIn, TikTokAds, Snapchat, Shopify, Mailchimp, Klaviyo} {
		conn, err := set.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, conn.Provider())
	}

	// manual invitation providers have no connector
	_, err = set.Resolve(Beehiiv)
	require.Error(t, err)
	assert.Equal(t, "UNSUPPORTED_PROVIDER", infraerrors.Code(err))
}

func TestNewConnectorSet_SpecializedConnectors(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)
	set := NewConnectorSet(registry, nil)

	meta, err := set.Resolve(Meta)
	require.NoError(t, err)
	_, ok := meta.(LongLivedExchanger)
	assert.True(t, ok, "meta connector must support the long-lived exchange")

	shopify, err := set.Resolve(Shopify)
	require.NoError(t, err)
	_, ok = shopify.(ShopIdentityFetcher)
	assert.True(t, ok, "shopify connector must support shop-scoped identity")

	google, err := set.Resolve(Google)
	require.NoError(t, err)
	_, ok = google.(LongLivedExchanger)
	assert.False(t, ok)
}
