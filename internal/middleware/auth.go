package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/davido182/depositdigest/internal/security"
)

// SessionValidator validates and, when close to expiry, renews a session token
type SessionValidator interface {
	Validate(ctx context.Context, token string) (security.Session, error)
}

// RenewedTokenHeader carries a replacement token after proactive renewal
const RenewedTokenHeader = "X-Renewed-Token"

// AuthMiddleware requires a valid bearer session
func AuthMiddleware(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: "Missing or malformed authorization header. Use: Bearer <token>",
				Code:  "UNAUTHORIZED",
			})
			return
		}

		session, err := sessions.Validate(c.Request.Context(), token)
		if err != nil {
			code := "INVALID_TOKEN"
			switch {
			case errors.Is(err, security.ErrSessionExpired):
				code = "SESSION_EXPIRED"
			case errors.Is(err, security.ErrRenewalFailed):
				code = "FORCED_LOGOUT"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: "Invalid or expired session",
				Code:  code,
			})
			return
		}

		setSession(c, session)
		c.Next()
	}
}

// ServiceTokenHeader carries the shared token of trusted internal callers
const ServiceTokenHeader = "X-Service-Token"

// ServiceAuthMiddleware admits only callers presenting the shared service
// token. An empty token rejects every request.
func ServiceAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(ServiceTokenHeader)
		if token == "" || presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: "Missing or invalid service token",
				Code:  "INVALID_SERVICE_TOKEN",
			})
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware sets the user context when a valid session is
// presented and lets the request through either way
func OptionalAuthMiddleware(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if session, err := sessions.Validate(c.Request.Context(), token); err == nil {
				setSession(c, session)
			}
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id, or "" for anonymous requests
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setSession(c *gin.Context, session security.Session) {
	c.Set("user_id", session.UserID)
	if session.Renewed {
		c.Header(RenewedTokenHeader, session.Token)
	}
}
