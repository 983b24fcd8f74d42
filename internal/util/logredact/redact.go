// Package logredact masks token and secret values in free-form text before
// it lands in logs or error messages. Provider error responses sometimes echo
// the credentials that were sent; everything that quotes an upstream body
// must pass through here first.
package logredact

import "regexp"

var (
	sensitiveJSON  = regexp.MustCompile(`"(access_token|refresh_token|id_token|client_secret|code)"\s*:\s*"[^"]*"`)
	sensitiveQuery = regexp.MustCompile(`\b(access_token|refresh_token|id_token|client_secret|code)=[^&\s"']+`)
)

// RedactText replaces sensitive values with *** wherever they appear in
// JSON-like or query-like form. Unrecognized text passes through unchanged.
func RedactText(s string) string {
	s = sensitiveJSON.ReplaceAllString(s, `"$1":"***"`)
	s = sensitiveQuery.ReplaceAllString(s, `$1=***`)
	return s
}
