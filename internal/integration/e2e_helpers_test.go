//go:build e2e

// Package integration holds end-to-end tests that run against a live
// connecthub instance. They are excluded from normal builds; run them with
//
//	CONNECTHUB_E2E_BASE_URL=http://localhost:8080 \
//	CONNECTHUB_E2E_JWT_SECRET=<jwt secret> \
//	go test -tags e2e ./internal/integration/
package integration

import (
	"bytes"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/marketopshq/connecthub/internal/server/middleware"
)

const (
	baseURLEnv   = "CONNECTHUB_E2E_BASE_URL"
	jwtSecretEnv = "CONNECTHUB_E2E_JWT_SECRET"
	agencyIDEnv  = "CONNECTHUB_E2E_AGENCY_ID"
)

func baseURL() string {
	if v := strings.TrimSpace(os.Getenv(baseURLEnv)); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:8080"
}

// e2eAgencyID resolves the agency the run operates on. The agency row must
// exist in the instance's database; connecting fails with AGENCY_NOT_FOUND
// otherwise.
func e2eAgencyID() int64 {
	if v := strings.TrimSpace(os.Getenv(agencyIDEnv)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 1
}

// skipWithoutServer skips unless a live instance answers on the health
// endpoint.
func skipWithoutServer(t *testing.T) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL() + "/healthz")
	if err != nil {
		t.Skipf("no live instance at %s: %v", baseURL(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("instance at %s unhealthy: status %d", baseURL(), resp.StatusCode)
	}
}

// e2eToken mints a session token with the shared secret. The secret must
// match the instance under test.
func e2eToken(t *testing.T, agencyID int64) string {
	t.Helper()
	secret := strings.TrimSpace(os.Getenv(jwtSecretEnv))
	if secret == "" {
		t.Skipf("%s not set, cannot authenticate against the instance", jwtSecretEnv)
	}
	token, err := middleware.GenerateToken(secret, middleware.AuthSubject{
		AgencyID: agencyID,
		Email:    "e2e@connecthub.test",
		Role:     "admin",
	}, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, method, path, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, baseURL()+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}
