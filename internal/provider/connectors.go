package provider

import (
	"net/http"

	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
)

// ConnectorSet maps provider identifiers to their connector, resolved once at
// startup. Connectors are stateless, so the set is safe for concurrent use.
type ConnectorSet struct {
	connectors map[string]Connector
}

// NewConnectorSet builds one connector per OAuth provider in the registry.
// Providers with a dedicated connector type get it; every other OAuth
// provider runs on the descriptor-driven standard connector. Manual
// invitation providers have no connector.
func NewConnectorSet(registry *Registry, credentials map[string]ClientCredentials) *ConnectorSet {
	set := &ConnectorSet{connectors: make(map[string]Connector)}
	for _, name := range registry.List() {
		desc, err := registry.Describe(name)
		if err != nil || desc.Mode != ModeOAuth {
			continue
		}
		creds := credentials[name]
		switch name {
		case Meta:
			set.connectors[name] = NewMeta(desc, creds)
		case Shopify:
			set.connectors[name] = NewShopify(desc, creds)
		case Mailchimp:
			set.connectors[name] = NewMailchimp(desc, creds)
		default:
			set.connectors[name] = NewStandard(desc, creds)
		}
	}
	return set
}

// NewConnectorSetFrom builds a set from pre-constructed connectors, for
// callers that need a custom connector wired in place of the defaults.
func NewConnectorSetFrom(connectors map[string]Connector) *ConnectorSet {
	set := &ConnectorSet{connectors: make(map[string]Connector, len(connectors))}
	for name, conn := range connectors {
		set.connectors[name] = conn
	}
	return set
}

// Resolve returns the connector for a provider. Unknown or manual providers
// fail fast instead of dispatching to a nil implementation.
func (s *ConnectorSet) Resolve(name string) (Connector, error) {
	conn, ok := s.connectors[name]
	if !ok {
		return nil, infraerrors.Newf(http.StatusBadRequest, "UNSUPPORTED_PROVIDER", "no connector registered for provider %q", name)
	}
	return conn, nil
}
