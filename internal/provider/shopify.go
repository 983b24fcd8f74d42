package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
	"github.com/tidwall/gjson"
)

// shopifyConnector handles the shop-scoped endpoints: every URL embeds the
// merchant's shop subdomain, so the exchange cannot run without shop context.
// Offline access tokens never expire and there is no refresh grant.
type shopifyConnector struct {
	desc   Descriptor
	creds  ClientCredentials
	client *req.Client
}

// NewShopify builds the Shopify connector.
func NewShopify(desc Descriptor, creds ClientCredentials) Connector {
	return &shopifyConnector{desc: desc, creds: creds, client: newUpstreamClient()}
}

func (c *shopifyConnector) Provider() string { return c.desc.Name }

func (c *shopifyConnector) Normalize(raw []byte) (*Tokens, error) {
	return normalizeTokenResponse(c.desc, raw, time.Now())
}

func (c *shopifyConnector) Exchange(ctx context.Context, in ExchangeInput) (*Tokens, error) {
	shop := normalizeShopDomain(in.ShopDomain)
	if shop == "" {
		return nil, infraerrors.New(http.StatusBadRequest, "SHOP_CONTEXT_REQUIRED", "shopify exchange requires a shop domain")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(map[string]string{
			"client_id":     c.creds.ClientID,
			"client_secret": c.creds.ClientSecret,
			"code":          in.Code,
		}).
		Post(shopURL(c.desc.TokenURL, shop))
	if err != nil {
		return nil, exchangeRequestFailed(c.desc.Name, err)
	}
	if !resp.IsSuccessState() {
		return nil, exchangeFailed(c.desc.Name, resp.StatusCode, resp.String())
	}
	return c.Normalize(resp.Bytes())
}

func (c *shopifyConnector) Refresh(ctx context.Context, current *Tokens) (*Tokens, error) {
	return nil, ErrRefreshUnsupported(c.desc.Name)
}

var _ ShopIdentityFetcher = (*shopifyConnector)(nil)

// FetchIdentity cannot run without shop context; callers holding the shop
// domain from connection metadata use FetchShopIdentity instead.
func (c *shopifyConnector) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	return nil, identityFetchFailed(c.desc.Name,
		infraerrors.New(http.StatusBadRequest, "SHOP_CONTEXT_REQUIRED", "shopify identity fetch requires shop context"))
}

// FetchShopIdentity verifies the token against the shop it was issued for.
func (c *shopifyConnector) FetchShopIdentity(ctx context.Context, accessToken, shopDomain string) (*Identity, error) {
	shop := normalizeShopDomain(shopDomain)
	if shop == "" {
		return nil, identityFetchFailed(c.desc.Name,
			infraerrors.New(http.StatusBadRequest, "SHOP_CONTEXT_REQUIRED", "shopify identity fetch requires shop context"))
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", accessToken).
		Get(shopURL(c.desc.IdentityURL, shop))
	if err != nil {
		return nil, identityFetchFailed(c.desc.Name, err)
	}
	if !resp.IsSuccessState() {
		return nil, identityFetchFailedStatus(c.desc.Name, resp.StatusCode, resp.String())
	}

	body := gjson.Parse(resp.String())
	return &Identity{
		ExternalID:  body.Get("shop.id").String(),
		Email:       body.Get("shop.email").String(),
		DisplayName: body.Get("shop.name").String(),
	}, nil
}

func shopURL(template, shop string) string {
	return strings.ReplaceAll(template, "{shop}", shop)
}

// normalizeShopDomain accepts "acme", "acme.myshopify.com" or a full URL and
// returns the bare shop handle.
func normalizeShopDomain(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".myshopify.com")
	if s == "" || strings.ContainsAny(s, "/?#") {
		return ""
	}
	return s
}
