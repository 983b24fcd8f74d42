//go:build unit

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
)

func TestMailchimpConnector_ExchangeNonExpiring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"mc-at","expires_in":0,"scope":null}`))
	}))
	defer srv.Close()

	conn := NewMailchimp(Descriptor{Name: Mailchimp, TokenURL: srv.URL}, ClientCredentials{ClientID: "cid"})
	tokens, err := conn.Exchange(context.Background(), ExchangeInput{
		Code:        "c",
		RedirectURI: "https://app.example.com/cb",
	})
	require.NoError(t, err)
	assert.Equal(t, "mc-at", tokens.AccessToken)
	assert.Nil(t, tokens.ExpiresAt)
	assert.Empty(t, tokens.RefreshToken)
}

func TestMailchimpConnector_FetchIdentityMetadataEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OAuth mc-at", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"dc": "us21",
			"user_id": 987654,
			"accountname": "Acme Newsletters",
			"login": {"email": "news@acme.example"}
		}`))
	}))
	defer srv.Close()

	conn := NewMailchimp(Descriptor{Name: Mailchimp, IdentityURL: srv.URL}, ClientCredentials{})
	identity, err := conn.FetchIdentity(context.Background(), "mc-at")
	require.NoError(t, err)
	assert.Equal(t, "987654", identity.ExternalID)
	assert.Equal(t, "news@acme.example", identity.Email)
	assert.Equal(t, "Acme Newsletters", identity.DisplayName)
}

func TestMailchimpConnector_FetchIdentityEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"dc":"us21"}`))
	}))
	defer srv.Close()

	conn := NewMailchimp(Descriptor{Name: Mailchimp, IdentityURL: srv.URL}, ClientCredentials{})
	_, err := conn.FetchIdentity(context.Background(), "mc-at")
	require.Error(t, err)
	assert.Equal(t, "IDENTITY_FETCH_FAILED", infraerrors.Code(err))
}

func TestMailchimpConnector_RefreshUnsupported(t *testing.T) {
	conn := NewMailchimp(Descriptor{Name: Mailchimp}, ClientCredentials{})
	_, err := conn.Refresh(context.Background(), &Tokens{AccessToken: "mc-at"})
	require.Error(t, err)
	assert.Equal(t, "REFRESH_UNSUPPORTED", infraerrors.Code(err))
}
