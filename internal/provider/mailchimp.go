package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

// mailchimpConnector covers Mailchimp's OAuth2 dialect: access tokens never
// expire, there is no refresh grant, and identity comes from the dedicated
// metadata endpoint (which also reveals the datacenter prefix API calls must
// be routed to).
type mailchimpConnector struct {
	desc   Descriptor
	creds  ClientCredentials
	client *req.Client
}

// NewMailchimp builds the Mailchimp connector.
func NewMailchimp(desc Descriptor, creds ClientCredentials) Connector {
	return &mailchimpConnector{desc: desc, creds: creds, client: newUpstreamClient()}
}

func (c *mailchimpConnector) Provider() string { return c.desc.Name }

func (c *mailchimpConnector) Normalize(raw []byte) (*Tokens, error) {
	// expires_in comes back as 0; the token model is non-expiring and the
	// descriptor declares no default lifetime, so ExpiresAt stays nil.
	return normalizeTokenResponse(c.desc, raw, time.Now())
}

func (c *mailchimpConnector) Exchange(ctx context.Context, in ExchangeInput) (*Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("code", in.Code)
	form.Set("redirect_uri", in.RedirectURI)

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

func (c *mailchimpConnector) Refresh(ctx context.Context, current *Tokens) (*Tokens, error) {
	return nil, ErrRefreshUnsupported(c.desc.Name)
}

func (c *mailchimpConnector) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "OAuth "+accessToken).
		Get(c.desc.IdentityURL)
	if err != nil {
		return nil, identityFetchFailed(c.desc.Name, err)
	}
	if !resp.IsSuccessState() {
		return nil, identityFetchFailedStatus(c.desc.Name, resp.StatusCode, resp.String())
	}

	body := gjson.Parse(resp.String())
	if body.Get("user_id").Int() == 0 && body.Get("login.email").String() == "" {
		return nil, identityFetchFailedStatus(c.desc.Name, resp.StatusCode, "response carried no identity fields")
	}
	return &Identity{
		ExternalID:  body.Get("user_id").String(),
		Email:       body.Get("login.email").String(),
		DisplayName: body.Get("accountname").String(),
	}, nil
}
