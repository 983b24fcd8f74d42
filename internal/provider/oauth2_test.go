//go:build unit

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
)

func TestStandardConnector_Exchange(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"code":          r.PostForm.Get("code"),
			"redirect_uri":  r.PostForm.Get("redirect_uri"),
			"code_verifier": r.PostForm.Get("code_verifier"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"scope":"ads.readonly"}`))
	}))
	defer srv.Close()

	conn := NewStandard(Descriptor{
		Name:                  "acme",
		TokenURL:              srv.URL,
		SupportsRefreshTokens: true,
		RequiresPKCE:          true,
	}, ClientCredentials{ClientID: "cid", ClientSecret: "cs"})

	tokens, err := conn.Exchange(context.Background(), ExchangeInput{
		Code:         "auth-code",
		RedirectURI:  "https://app.example.com/cb",
		CodeVerifier: "verifier-123",
	})
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", gotForm["grant_type"])
	assert.Equal(t, "cid", gotForm["client_id"])
	assert.Equal(t, "auth-code", gotForm["code"])
	assert.Equal(t, "https://app.example.com/cb", gotForm["redirect_uri"])
	assert.Equal(t, "verifier-123", gotForm["code_verifier"])

	assert.Equal(t, "at-1", tokens.AccessToken)
	assert.Equal(t, "rt-1", tokens.RefreshToken)
	require.NotNil(t, tokens.ExpiresAt)
}

func TestStandardConnector_ExchangeUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	conn := NewStandard(Descriptor{Name: "acme", TokenURL: srv.URL}, ClientCredentials{})
	_, err := conn.Exchange(context.Background(), ExchangeInput{Code: "bad"})
	require.Error(t, err)
	assert.Equal(t, "PROVIDER_EXCHANGE_FAILED", infraerrors.Code(err))
	assert.Equal(t, http.StatusBadGateway, infraerrors.HTTPStatus(err))
}

func TestStandardConnector_RefreshKeepsOldRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-old", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		// no refresh_token in the response: provider does not rotate
		_, _ = w.Write([]byte(`{"access_token":"at-2","expires_in":3600}`))
	}))
	defer srv.Close()

	conn := NewStandard(Descriptor{
		Name:                  "acme",
		TokenURL:              srv.URL,
		SupportsRefreshTokens: true,
	}, ClientCredentials{ClientID: "cid", ClientSecret: "cs"})

	tokens, err := conn.Refresh(context.Background(), &Tokens{AccessToken: "at-1", RefreshToken: "rt-old"})
	require.NoError(t, err)
	assert.Equal(t, "at-2", tokens.AccessToken)
	assert.Equal(t, "rt-old", tokens.RefreshToken)
}

func TestStandardConnector_RefreshRotation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-new","expires_in":3600}`))
	}))
	defer srv.Close()

	conn := NewStandard(Descriptor{
		Name:                  "acme",
		TokenURL:              srv.URL,
		SupportsRefreshTokens: true,
	}, ClientCredentials{})

	tokens, err := conn.Refresh(context.Background(), &Tokens{RefreshToken: "rt-old"})
	require.NoError(t, err)
	assert.Equal(t, "rt-new", tokens.RefreshToken)
}

func TestStandardConnector_RefreshUnsupported(t *testing.T) {
	conn := NewStandard(Descriptor{Name: "acme", SupportsRefreshTokens: false}, ClientCredentials{})
	_, err := conn.Refresh(context.Background(), &Tokens{RefreshToken: "rt"})
	require.Error(t, err)
	assert.Equal(t, "REFRESH_UNSUPPORTED", infraerrors.Code(err))
	assert.Equal(t, http.StatusConflict, infraerrors.HTTPStatus(err))
}

func TestStandardConnector_FetchIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"u-1","email":"owner@client.example","name":"Owner"}`))
	}))
	defer srv.Close()

	conn := NewStandard(Descriptor{Name: "acme", IdentityURL: srv.URL}, ClientCredentials{})
	identity, err := conn.FetchIdentity(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.ExternalID)
	assert.Equal(t, "owner@client.example", identity.Email)
	assert.Equal(t, "Owner", identity.DisplayName)
}

func TestStandardConnector_FetchIdentityEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	conn := NewStandard(Descriptor{Name: "acme", IdentityURL: srv.URL}, ClientCredentials{})
	_, err := conn.FetchIdentity(context.Background(), "at-1")
	require.Error(t, err)
	assert.Equal(t, "IDENTITY_FETCH_FAILED", infraerrors.Code(err))
}

func TestStandardConnector_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	conn := NewStandard(Descriptor{Name: "acme", TokenURL: srv.URL}, ClientCredentials{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := conn.Exchange(ctx, ExchangeInput{Code: "c"})
	require.Error(t, err)
	assert.Equal(t, "PROVIDER_EXCHANGE_FAILED", infraerrors.Code(err))
}
