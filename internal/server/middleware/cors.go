package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketopshq/connecthub/internal/config"
)

// CORS applies cross-origin headers for allowed origins only. Requests from
// other origins get no Access-Control headers at all, so the browser blocks
// them without this server advertising anything about its API surface.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	wildcard := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		permitted := false
		if origin != "" {
			if wildcard && !cfg.AllowCredentials {
				permitted = true
			} else if _, ok := allowed[origin]; ok {
				permitted = true
			}
		}

		if permitted {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Max-Age", "86400")
			if cfg.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
