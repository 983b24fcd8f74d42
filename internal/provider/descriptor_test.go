//go:build unit

package provider

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
)

func TestNewRegistry_ParsesEmbeddedTable(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	names := registry.List()
	assert.Equal(t, []string{
		Beehiiv, Google, Klaviyo, LinkedIn, Mailchimp, Meta, Shopify, Snapchat, TikTokAds,
	}, names)
	assert.True(t, sort.StringsAreSorted(names))
}

func TestRegistry_DescriptorFields(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	google, err := registry.Describe(Google)
	require.NoError(t, err)
	assert.Equal(t, Google, google.Name)
	assert.Equal(t, ModeOAuth, google.Mode)
	assert.True(t, google.SupportsRefreshTokens)
	assert.True(t, google.RequiresPKCE)
	assert.Equal(t, time.Hour, google.DefaultTokenLifetime)
	assert.Equal(t, 30*time.Minute, google.RefreshThreshold)
	assert.Equal(t, " ", google.ScopeSeparator)

	meta, err := registry.Describe(Meta)
	require.NoError(t, err)
	assert.False(t, meta.SupportsRefreshTokens)
	assert.True(t, meta.RequiresLongLivedExchange)
	assert.Equal(t, ",", meta.ScopeSeparator)
	assert.Equal(t, 1440*time.Hour, meta.DefaultTokenLifetime)

	tiktok, err := registry.Describe(TikTokAds)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, tiktok.DefaultTokenLifetime)

	shopify, err := registry.Describe(Shopify)
	require.NoError(t, err)
	assert.True(t, shopify.RequiresShopContext)
	assert.Zero(t, shopify.DefaultTokenLifetime)

	mailchimp, err := registry.Describe(Mailchimp)
	require.NoError(t, err)
	assert.False(t, mailchimp.SupportsRefreshTokens)
	assert.Zero(t, mailchimp.DefaultTokenLifetime)
	assert.Zero(t, mailchimp.RefreshThreshold)

	beehiiv, err := registry.Describe(Beehiiv)
	require.NoError(t, err)
	assert.Equal(t, ModeManualInvitation, beehiiv.Mode)
}

func TestRegistry_DescribeUnknown(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	_, err = registry.Describe("myspace")
	require.Error(t, err)
	assert.Equal(t, "UNSUPPORTED_PROVIDER", infraerrors.Code(err))
}

func TestNewRegistryFromYAML_Defaults(t *testing.T) {
	registry, err := newRegistryFromYAML([]byte(`
providers:
  acme:
    display_name: Acme Ads
    token_url: https://acme.example.com/token
`))
	require.NoError(t, err)

	desc, err := registry.Describe("acme")
	require.NoError(t, err)
	assert.Equal(t, ModeOAuth, desc.Mode)
	assert.Equal(t, " ", desc.ScopeSeparator)
	assert.Zero(t, desc.DefaultTokenLifetime)
}

func TestNewRegistryFromYAML_BadDuration(t *testing.T) {
	_, err := newRegistryFromYAML([]byte(`
providers:
  acme:
    default_token_lifetime: soon
`))
	require.Error(t, err)
}
