// Package provider holds the static per-provider OAuth descriptors and the
// connectors that talk to each platform's token and identity endpoints.
//
// Behavioral differences between platforms (scope separator, refresh support,
// PKCE, long-lived exchange, shop-scoped token endpoints) are expressed as
// descriptor fields so the rest of the system never branches on a provider
// name.
package provider

import (
	_ "embed"
	"fmt"
	"net/http"
	"sort"
	"time"

	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Supported provider identifiers. These are wire values, stored in the
// connections table and used in API paths.
const (
	Google    = "google"
	Meta      = "meta"
	LinkedIn  = "linkedin"
	TikTokAds = "tiktok_ads"
	Snapchat  = "snapchat"
	Shopify   = "shopify"
	Mailchimp = "mailchimp"
	Klaviyo   = "klaviyo"
	Beehiiv   = "beehiiv"
)

// Connection modes.
const (
	ModeOAuth            = "oauth"
	ModeManualInvitation = "manual_invitation"
)

// Descriptor is the immutable registry entry for one provider.
type Descriptor struct {
	Name        string `yaml:"-"`
	DisplayName string `yaml:"display_name"`
	Mode        string `yaml:"mode"`

	AuthURL     string `yaml:"auth_url"`
	TokenURL    string `yaml:"token_url"`
	IdentityURL string `yaml:"identity_url"`

	ScopeSeparator string   `yaml:"scope_separator"`
	DefaultScopes  []string `yaml:"default_scopes"`

	SupportsRefreshTokens     bool `yaml:"supports_refresh_tokens"`
	RequiresPKCE              bool `yaml:"requires_pkce"`
	RequiresLongLivedExchange bool `yaml:"requires_long_lived_exchange"`
	RequiresShopContext       bool `yaml:"requires_shop_context"`

	// DefaultTokenLifetime applies when the token response omits expires_in.
	// Zero means the token never expires.
	DefaultTokenLifetime time.Duration `yaml:"default_token_lifetime"`

	// RefreshThreshold overrides the service-wide refresh window for
	// providers whose tokens live much shorter than the 5-day default.
	// Zero means use the service default.
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
}

// UnmarshalYAML decodes a descriptor, parsing duration fields from Go
// duration literals ("1h", "30m") which yaml.v3 cannot decode into
// time.Duration on its own.
func (d *Descriptor) UnmarshalYAML(node *yaml.Node) error {
	type rawDescriptor struct {
		DisplayName string `yaml:"display_name"`
		Mode        string `yaml:"mode"`

		AuthURL     string `yaml:"auth_url"`
		TokenURL    string `yaml:"token_url"`
		IdentityURL string `yaml:"identity_url"`

		ScopeSeparator string   `yaml:"scope_separator"`
		DefaultScopes  []string `yaml:"default_scopes"`

		SupportsRefreshTokens     bool `yaml:"supports_refresh_tokens"`
		RequiresPKCE              bool `yaml:"requires_pkce"`
		RequiresLongLivedExchange bool `yaml:"requires_long_lived_exchange"`
		RequiresShopContext       bool `yaml:"requires_shop_context"`

		DefaultTokenLifetime string `yaml:"default_token_lifetime"`
		RefreshThreshold     string `yaml:"refresh_threshold"`
	}

	var raw rawDescriptor
	if err := node.Decode(&raw); err != nil {
		return err
	}

	lifetime, err := parseOptionalDuration(raw.DefaultTokenLifetime)
	if err != nil {
		return fmt.Errorf("default_token_lifetime: %w", err)
	}
	threshold, err := parseOptionalDuration(raw.RefreshThreshold)
	if err != nil {
		return fmt.Errorf("refresh_threshold: %w", err)
	}

	*d = Descriptor{
		DisplayName:               raw.DisplayName,
		Mode:                      raw.Mode,
		AuthURL:                   raw.AuthURL,
		TokenURL:                  raw.TokenURL,
		IdentityURL:               raw.IdentityURL,
		ScopeSeparator:            raw.ScopeSeparator,
		DefaultScopes:             raw.DefaultScopes,
		SupportsRefreshTokens:     raw.SupportsRefreshTokens,
		RequiresPKCE:              raw.RequiresPKCE,
		RequiresLongLivedExchange: raw.RequiresLongLivedExchange,
		RequiresShopContext:       raw.RequiresShopContext,
		DefaultTokenLifetime:      lifetime,
		RefreshThreshold:          threshold,
	}
	return nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

//go:embed providers.yaml
var providersYAML []byte

// Registry resolves provider identifiers to descriptors. It is built once at
// startup and read-only afterwards.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry parses the embedded descriptor table.
func NewRegistry() (*Registry, error) {
	return newRegistryFromYAML(providersYAML)
}

func newRegistryFromYAML(raw []byte) (*Registry, error) {
	var doc struct {
		Providers map[string]Descriptor `yaml:"providers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, infraerrors.Newf(http.StatusInternalServerError, "PROVIDER_REGISTRY_INVALID", "parse provider registry: %v", err)
	}
	descriptors := make(map[string]Descriptor, len(doc.Providers))
	for name, desc := range doc.Providers {
		desc.Name = name
		if desc.Mode == "" {
			desc.Mode = ModeOAuth
		}
		if desc.ScopeSeparator == "" {
			desc.ScopeSeparator = " "
		}
		descriptors[name] = desc
	}
	return &Registry{descriptors: descriptors}, nil
}

// Describe returns the descriptor for a provider identifier.
func (r *Registry) Describe(name string) (Descriptor, error) {
	desc, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, infraerrors.Newf(http.StatusBadRequest, "UNSUPPORTED_PROVIDER", "unknown provider %q", name)
	}
	return desc, nil
}

// List returns all registered provider identifiers, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
