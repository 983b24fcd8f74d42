// Package middleware holds the gin middleware stack for the HTTP server.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
	"github.com/marketopshq/connecthub/internal/pkg/response"
)

// Recovery converts panics into opaque 500 responses. If the handler already
// wrote a body before panicking, that body stands.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(gin.DefaultErrorWriter, "panic recovered: %v\n%s\n", r, debug.Stack())
				if !c.Writer.Written() {
					response.Error(c, http.StatusInternalServerError, infraerrors.UnknownMessage)
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
