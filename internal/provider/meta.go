package provider

import (
	"context"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

// metaConnector handles the Meta Graph API quirks: comma-joined scopes, no
// refresh tokens, and a mandatory second exchange that converts the
// hours-lived token from the code exchange into a ~60 day one.
type metaConnector struct {
	desc   Descriptor
	creds  ClientCredentials
	client *req.Client
}

// NewMeta builds the Meta Business connector.
func NewMeta(desc Descriptor, creds ClientCredentials) Connector {
	return &metaConnector{desc: desc, creds: creds, client: newUpstreamClient()}
}

var _ LongLivedExchanger = (*metaConnector)(nil)

func (c *metaConnector) Provider() string { return c.desc.Name }

func (c *metaConnector) Normalize(raw []byte) (*Tokens, error) {
	return normalizeTokenResponse(c.desc, raw, time.Now())
}

func (c *metaConnector) Exchange(ctx context.Context, in ExchangeInput) (*Tokens, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client_id":     c.creds.ClientID,
			"client_secret": c.creds.ClientSecret,
			"code":          in.Code,
			"redirect_uri":  in.RedirectURI,
		}).
		Get(c.desc.TokenURL)
	if err != nil {
		return nil, exchangeRequestFailed(c.desc.Name, err)
	}
	if !resp.IsSuccessState() {
		return nil, exchangeFailed(c.desc.Name, resp.StatusCode, resp.String())
	}
	return c.Normalize(resp.Bytes())
}

// ExchangeLongLived performs the fb_exchange_token conversion. It runs once,
// right after the initial code exchange.
func (c *metaConnector) ExchangeLongLived(ctx context.Context, shortLived *Tokens) (*Tokens, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":        "fb_exchange_token",
			"client_id":         c.creds.ClientID,
			"client_secret":     c.creds.ClientSecret,
			"fb_exchange_token": shortLived.AccessToken,
		}).
		Get(c.desc.TokenURL)
	if err != nil {
		return nil, exchangeRequestFailed(c.desc.Name, err)
	}
	if !resp.IsSuccessState() {
		return nil, exchangeFailed(c.desc.Name, resp.StatusCode, resp.String())
	}
	tokens, err := c.Normalize(resp.Bytes())
	if err != nil {
		return nil, err
	}
	if tokens.Scope == "" {
		tokens.Scope = shortLived.Scope
	}
	return tokens, nil
}

// Refresh is unsupported: expired Meta tokens require the user to
// re-authorize through the consent dialog.
func (c *metaConnector) Refresh(ctx context.Context, current *Tokens) (*Tokens, error) {
	return nil, ErrRefreshUnsupported(c.desc.Name)
}

func (c *metaConnector) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("fields", "id,name,email").
		SetQueryParam("access_token", accessToken).
		Get(c.desc.IdentityURL)
	if err != nil {
		return nil, identityFetchFailed(c.desc.Name, err)
	}
	if !resp.IsSuccessState() {
		return nil, identityFetchFailedStatus(c.desc.Name, resp.StatusCode, resp.String())
	}

	body := gjson.Parse(resp.String())
	if !body.Get("id").Exists() {
		return nil, identityFetchFailedStatus(c.desc.Name, resp.StatusCode, "response carried no id field")
	}
	return &Identity{
		ExternalID:  body.Get("id").String(),
		Email:       body.Get("email").String(),
		DisplayName: body.Get("name").String(),
	}, nil
}
