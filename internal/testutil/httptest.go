//go:build unit

package testutil

import (
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewGinTestContext builds a request-bearing gin context for driving a
// handler directly, bypassing the router and its middleware chain. A
// non-empty body is sent as JSON.
func NewGinTestContext(method, path, body string) (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	if body == "" {
		c.Request = httptest.NewRequest(method, path, nil)
		return c, rec
	}

	c.Request = httptest.NewRequest(method, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

// SetProviderParam sets the :provider route parameter on a context built
// outside the router.
func SetProviderParam(c *gin.Context, name string) {
	c.Params = append(c.Params, gin.Param{Key: "provider", Value: name})
}
