//go:build unit

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
)

func TestNormalizeShopDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acme", "acme"},
		{"acme.myshopify.com", "acme"},
		{"https://acme.myshopify.com", "acme"},
		{"https://acme.myshopify.com/", "acme"},
		{"  ACME.MyShopify.com  ", "acme"},
		{"", ""},
		{"https://", ""},
		{"acme/../evil", ""},
		{"acme?x=1", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeShopDomain(tt.in), "input %q", tt.in)
	}
}

func TestShopifyConnector_ExchangeRequiresShopContext(t *testing.T) {
	conn := NewShopify(Descriptor{Name: Shopify}, ClientCredentials{})
	_, err := conn.Exchange(context.Background(), ExchangeInput{Code: "c"})
	require.Error(t, err)
	assert.Equal(t, "SHOP_CONTEXT_REQUIRED", infraerrors.Code(err))
	assert.Equal(t, http.StatusBadRequest, infraerrors.HTTPStatus(err))
}

func TestShopifyConnector_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/shops/acme/"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"shpat_x","scope":"read_products,read_orders"}`))
	}))
	defer srv.Close()

	conn := NewShopify(Descriptor{
		Name:     Shopify,
		TokenURL: srv.URL + "/shops/{shop}/token",
	}, ClientCredentials{ClientID: "cid", ClientSecret: "cs"})

	tokens, err := conn.Exchange(context.Background(), ExchangeInput{
		Code:       "c",
		ShopDomain: "acme.myshopify.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "shpat_x", tokens.AccessToken)
	// offline tokens never expire
	assert.Nil(t, tokens.ExpiresAt)
}

func TestShopifyConnector_FetchIdentityWithoutShopFails(t *testing.T) {
	conn := NewShopify(Descriptor{Name: Shopify}, ClientCredentials{})
	_, err := conn.FetchIdentity(context.Background(), "shpat_x")
	require.Error(t, err)
	assert.Equal(t, "IDENTITY_FETCH_FAILED", infraerrors.Code(err))
}

func TestShopifyConnector_FetchShopIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_x", r.Header.Get("X-Shopify-Access-Token"))
		assert.True(t, strings.HasPrefix(r.URL.Path, "/shops/acme/"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"shop":{"id":1234,"name":"Acme Store","email":"store@acme.example"}}`))
	}))
	defer srv.Close()

	conn := NewShopify(Descriptor{
		Name:        Shopify,
		IdentityURL: srv.URL + "/shops/{shop}/shop.json",
	}, ClientCredentials{})

	fetcher, ok := conn.(ShopIdentityFetcher)
	require.True(t, ok)

	identity, err := fetcher.FetchShopIdentity(context.Background(), "shpat_x", "acme")
	require.NoError(t, err)
	assert.Equal(t, "1234", identity.ExternalID)
	assert.Equal(t, "Acme Store", identity.DisplayName)
	assert.Equal(t, "store@acme.example", identity.Email)
}

func TestShopifyConnector_RefreshUnsupported(t *testing.T) {
	conn := NewShopify(Descriptor{Name: Shopify}, ClientCredentials{})
	_, err := conn.Refresh(context.Background(), &Tokens{AccessToken: "shpat_x"})
	require.Error(t, err)
	assert.Equal(t, "REFRESH_UNSUPPORTED", infraerrors.Code(err))
}
