// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, request IDs, and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → RateLimit → Auth → Role → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attempts before any DB
// work. Auth populates the user identity; role checks read from that context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pak-sh/pakweb/internal/auth"
	"github.com/pak-sh/pakweb/internal/db/models"
)

// Context keys set by Auth.
const (
	UserKey       = "user"
	UserIDKey     = "user_id"
	SessionKey    = "session"
	AuthMethodKey = "auth_method"
)

// Auth validates one of the three accepted credentials on the Authorization
// header: a JWT access token, a user API key (recognized by its prefix), or an
// opaque session token. On success the user is stored in the request context.
func Auth(authSvc *auth.Service, apiKeyPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or malformed authorization header",
			})
			return
		}

		ctx := c.Request.Context()

		// JWTs are checked first: validation is stateless for invalid tokens,
		// so the common browser-session path never pays for a failed DB probe.
		if strings.Count(token, ".") == 2 {
			user, err := authSvc.AuthenticateAccessToken(ctx, token)
			if err == nil {
				c.Set(UserKey, user)
				c.Set(UserIDKey, user.ID)
				c.Set(AuthMethodKey, "jwt")
				c.Next()
				return
			}
			unauthorized(c)
			return
		}

		if apiKeyPrefix != "" && strings.HasPrefix(token, apiKeyPrefix+"_") {
			user, err := authSvc.AuthenticateAPIKey(ctx, token)
			if err == nil {
				c.Set(UserKey, user)
				c.Set(UserIDKey, user.ID)
				c.Set(AuthMethodKey, "api_key")
				c.Next()
				return
			}
			unauthorized(c)
			return
		}

		user, session, err := authSvc.AuthenticateSession(ctx, token)
		if err != nil {
			unauthorized(c)
			return
		}
		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Set(SessionKey, session)
		c.Set(AuthMethodKey, "session")
		c.Next()
	}
}

// bearerToken extracts the Bearer credential from the Authorization header
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "invalid credentials",
	})
}

// CurrentUser returns the authenticated user stored by Auth
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
