// Package urlvalidator validates and normalizes URLs supplied by API
// callers, primarily OAuth redirect URIs.
package urlvalidator

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURLFormat checks scheme, host and port and returns the URL with
// trailing slashes removed. http is rejected unless allowInsecureHTTP is set;
// local development callbacks are the only expected http users.
func ValidateURLFormat(raw string, allowInsecureHTTP bool) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !allowInsecureHTTP {
			return "", fmt.Errorf("http urls are not allowed")
		}
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host")
	}

	return strings.TrimRight(u.String(), "/"), nil
}
