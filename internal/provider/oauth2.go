package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

// standardConnector implements the plain OAuth2 authorization-code flow used
// by google, linkedin, tiktok_ads, snapchat and klaviyo. All divergence it
// can absorb lives in the descriptor; providers needing different request
// shapes get their own connector type.
type standardConnector struct {
	desc   Descriptor
	creds  ClientCredentials
	client *req.Client
}

// NewStandard builds a connector for any descriptor-conformant OAuth2 provider.
func NewStandard(desc Descriptor, creds ClientCredentials) Connector {
	return &standardConnector{desc: desc, creds: creds, client: newUpstreamClient()}
}

func (c *standardConnector) Provider() string { return c.desc.Name }

func (c *standardConnector) Normalize(raw []byte) (*Tokens, error) {
	return normalizeTokenResponse(c.desc, raw, time.Now())
}

func (c *standardConnector) Exchange(ctx context.Context, in ExchangeInput) (*Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("code", in.Code)
	form.Set("redirect_uri", in.RedirectURI)
	if c.desc.RequiresPKCE && in.CodeVerifier != "" {
		form.Set("code_verifier", in.CodeVerifier)
	}
	return c.postTokenEndpoint(ctx, form)
}

func (c *standardConnector) Refresh(ctx context.Context, current *Tokens) (*Tokens, error) {
	if !c.desc.SupportsRefreshTokens {
		return nil, ErrRefreshUnsupported(c.desc.Name)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("refresh_token", current.RefreshToken)
	tokens, err := c.postTokenEndpoint(ctx, form)
	if err != nil {
		return nil, err
	}
	// Providers that rotate refresh tokens return a new one; the rest expect
	// the caller to keep using the old one.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = current.RefreshToken
	}
	return tokens, nil
}

func (c *standardConnector) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBearerAuthToken(accessToken).
		Get(c.desc.IdentityURL)
	if err != nil {
		return nil, identityFetchFailed(c.desc.Name, err)
	}
	if !resp.IsSuccessState() {
		return nil, identityFetchFailedStatus(c.desc.Name, resp.StatusCode, resp.String())
	}

	body := gjson.Parse(resp.String())
	identity := &Identity{
		ExternalID:  firstString(body, "sub", "id", "data.id", "data.user.id", "me.id"),
		Email:       firstString(body, "email", "data.email", "me.email"),
		DisplayName: firstString(body, "name", "display_name", "data.display_name", "data.user.display_name"),
	}
	if identity.ExternalID == "" && identity.Email == "" {
		return nil, identityFetchFailedStatus(c.desc.Name, resp.StatusCode, "response carried no identity fields")
	}
	return identity, nil
}

func (c *standardConnector) postTokenEndpoint(ctx context.Context, form url.Values) (*Tokens, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(c.desc.TokenURL)
	if err != nil {
		return nil, exchangeRequestFailed(c.desc.Name, err)
	}
	if !resp.IsSuccessState() {
		return nil, exchangeFailed(c.desc.Name, resp.StatusCode, resp.String())
	}

	return c.Normalize(resp.Bytes())
}
