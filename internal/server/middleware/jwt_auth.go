package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextKeyAuthSubject = "auth_subject"

	defaultTokenTTL = time.Hour
)

// AuthSubject is the authenticated caller attached to the request context.
type AuthSubject struct {
	AgencyID int64
	Email    string
	Role     string
}

// Claims is the JWT payload issued to dashboard sessions.
type Claims struct {
	AgencyID int64  `json:"agency_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ErrorResponse is the auth failure body. Code is machine-readable so the
// frontend can distinguish an expired session from a malformed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JWTAuth authenticates requests with a bearer token signed by the shared
// secret and attaches the subject to the context.
func JWTAuth(secret string) gin.HandlerFunc {
	secretBytes := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortAuth(c, "UNAUTHORIZED", "authorization required")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortAuth(c, "INVALID_AUTH_HEADER", "authorization header must be 'Bearer <token>'")
			return
		}
		raw := strings.TrimSpace(parts[1])
		if raw == "" {
			abortAuth(c, "EMPTY_TOKEN", "bearer token is empty")
			return
		}

		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return secretBytes, nil
		})
		if err != nil || !token.Valid || claims.AgencyID == 0 {
			abortAuth(c, "INVALID_TOKEN", "token is invalid or expired")
			return
		}

		c.Set(contextKeyAuthSubject, &AuthSubject{
			AgencyID: claims.AgencyID,
			Email:    claims.Email,
			Role:     claims.Role,
		})
		c.Next()
	}
}

// GenerateToken issues a signed session token for the subject.
func GenerateToken(secret string, subject AuthSubject, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	claims := Claims{
		AgencyID: subject.AgencyID,
		Email:    subject.Email,
		Role:     subject.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// GetAuthSubjectFromContext returns the authenticated subject, if any.
func GetAuthSubjectFromContext(c *gin.Context) (*AuthSubject, bool) {
	v, ok := c.Get(contextKeyAuthSubject)
	if !ok {
		return nil, false
	}
	subject, ok := v.(*AuthSubject)
	return subject, ok
}

// GetAgencyIDFromContext returns the caller's agency, zero when unauthenticated.
func GetAgencyIDFromContext(c *gin.Context) int64 {
	subject, ok := GetAuthSubjectFromContext(c)
	if !ok {
		return 0
	}
	return subject.AgencyID
}

func abortAuth(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: code, Message: message})
}
