//go:build e2e

package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return env
}

// TestConnectionLifecycleFlow walks one agency through the full lifecycle:
// discover providers, connect a manual provider, inspect and patch the
// connection, read the audit trail, and revoke.
func TestConnectionLifecycleFlow(t *testing.T) {
	skipWithoutServer(t)

	token := e2eToken(t, e2eAgencyID())

	t.Run("providers", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/v1/providers", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		env := decodeEnvelope(t, resp)

		var data struct {
			Providers []string `json:"providers"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.Contains(t, data.Providers, "google")
		require.Contains(t, data.Providers, "beehiiv")
	})

	t.Run("connect beehiiv", func(t *testing.T) {
		body := []byte(`{"details":{"publication":"Weekly Digest","invited_email":"ops@agency.test"}}`)
		resp := doRequest(t, http.MethodPost, "/api/v1/connections/beehiiv", token, body)
		// 409 means a previous run got here with the same agency id
		if resp.StatusCode == http.StatusConflict {
			resp.Body.Close()
			t.Log("connection already exists, continuing with it")
			return
		}
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		env := decodeEnvelope(t, resp)

		var conn struct {
			Provider string `json:"provider"`
			Status   string `json:"status"`
			AuthMode string `json:"auth_mode"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &conn))
		require.Equal(t, "beehiiv", conn.Provider)
		require.Equal(t, "active", conn.Status)
	})

	t.Run("list includes connection", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/v1/connections", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		env := decodeEnvelope(t, resp)

		var data struct {
			Connections []struct {
				Provider string `json:"provider"`
			} `json:"connections"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))

		found := false
		for _, c := range data.Connections {
			if c.Provider == "beehiiv" {
				found = true
			}
		}
		require.True(t, found, "beehiiv connection missing from list")
	})

	t.Run("get does not leak secret ref", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/v1/connections/beehiiv", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NotContains(t, string(raw), "secret_ref")
		require.NotContains(t, string(raw), "sec_")
	})

	t.Run("patch metadata", func(t *testing.T) {
		body := []byte(`{"metadata":{"owner_team":"lifecycle"}}`)
		resp := doRequest(t, http.MethodPatch, "/api/v1/connections/beehiiv/metadata", token, body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		env := decodeEnvelope(t, resp)

		var conn struct {
			Metadata map[string]any `json:"metadata"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &conn))
		require.Equal(t, "lifecycle", conn.Metadata["owner_team"])
	})

	t.Run("token for manual provider is rejected", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/v1/connections/beehiiv/token", token, nil)
		env := decodeEnvelope(t, resp)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "CONNECTION_NOT_OAUTH", env.Reason)
	})

	t.Run("audit trail records the flow", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/v1/audit?page_size=50", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		env := decodeEnvelope(t, resp)

		var data struct {
			Entries []struct {
				Action   string `json:"action"`
				Provider string `json:"provider"`
			} `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))

		actions := make(map[string]bool)
		for _, e := range data.Entries {
			if e.Provider == "beehiiv" {
				actions[e.Action] = true
			}
		}
		require.True(t, actions["connection.connect"], "missing connect audit entry")
		require.True(t, actions["connection.update_metadata"], "missing metadata update audit entry")
	})

	t.Run("revoke", func(t *testing.T) {
		resp := doRequest(t, http.MethodDelete, "/api/v1/connections/beehiiv", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		env := decodeEnvelope(t, resp)

		var conn struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &conn))
		require.Equal(t, "revoked", conn.Status)

		// a revoked connection never serves tokens again
		resp = doRequest(t, http.MethodGet, "/api/v1/connections/beehiiv/token", token, nil)
		env = decodeEnvelope(t, resp)
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		require.Equal(t, "CONNECTION_NOT_ACTIVE", env.Reason)
	})

	t.Run("unauthenticated is rejected", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/v1/connections", "", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
