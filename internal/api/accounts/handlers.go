// Package accounts implements the /api/v1/auth endpoints: login, registration,
// token refresh, password flows, API key rotation, and session management.
package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pak-sh/pakweb/internal/auth"
	"github.com/pak-sh/pakweb/internal/db/models"
	"github.com/pak-sh/pakweb/internal/middleware"
)

// Handlers handles account and credential endpoints
type Handlers struct {
	auth *auth.Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(authSvc *auth.Service) *Handlers {
	return &Handlers{auth: authSvc}
}

// userJSON shapes a user for API responses. The password hash and lockout
// bookkeeping never leave the server.
func userJSON(u *models.User) gin.H {
	return gin.H{
		"id":             u.ID,
		"email":          u.Email,
		"name":           u.Name,
		"is_admin":       u.IsAdmin,
		"is_active":      u.IsActive,
		"email_verified": u.EmailVerified,
		"avatar_url":     u.AvatarURL,
		"bio":            u.Bio,
		"timezone":       u.Timezone,
		"language":       u.Language,
		"last_login":     u.LastLogin,
		"created_at":     u.CreatedAt,
	}
}

func sessionJSON(s *models.Session) gin.H {
	return gin.H{
		"id":         s.ID,
		"ip_address": s.IPAddress,
		"user_agent": s.UserAgent,
		"expires_at": s.ExpiresAt,
		"created_at": s.CreatedAt,
	}
}

// LoginRequest represents a login attempt
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Remember bool   `json:"remember"`
}

// @Summary      Log in
// @Description  Authenticates with email and password. Returns a session token plus a JWT access/refresh pair.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "user, session_token, access_token, refresh_token"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      423  {object}  map[string]interface{}  "Account locked"
// @Router       /api/v1/auth/login [post]
// POST /api/v1/auth/login
func (h *Handlers) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		result, err := h.auth.Login(c.Request.Context(), auth.LoginInput{
			Email:     req.Email,
			Password:  req.Password,
			Remember:  req.Remember,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrAccountLocked):
				c.JSON(http.StatusLocked, gin.H{"error": "Account is temporarily locked"})
			case errors.Is(err, auth.ErrAccountDisabled):
				c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
			case errors.Is(err, auth.ErrInvalidCredentials):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			default:
				slog.Error("login failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			}
			return
		}

		access, refresh, err := h.auth.IssueTokenPair(result.User)
		if err != nil {
			slog.Error("failed to issue token pair", "error", err, "user_id", result.User.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":          userJSON(result.User),
			"session_token": result.Session.Token,
			"expires_at":    result.Session.ExpiresAt,
			"access_token":  access,
			"refresh_token": refresh,
		})
	}
}

// RegisterRequest represents a new account request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Register
// @Description  Creates a new account. The generated API key is returned once and never again.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  RegisterRequest  true  "Account details"
// @Success      201  {object}  map[string]interface{}  "user, api_key"
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/auth/register [post]
// POST /api/v1/auth/register
func (h *Handlers) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		user, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
			Email:    req.Email,
			Name:     req.Name,
			Password: req.Password,
		})
		if err != nil {
			var verr *auth.ValidationError
			switch {
			case errors.Is(err, auth.ErrEmailTaken):
				c.JSON(http.StatusConflict, gin.H{"error": "Email is already registered"})
			case errors.As(err, &verr):
				c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
			default:
				slog.Error("registration failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
			}
			return
		}

		resp := gin.H{"user": userJSON(user)}
		if user.APIKey != nil {
			resp["api_key"] = *user.APIKey
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// @Summary      Refresh tokens
// @Description  Exchanges a valid refresh token for a new access/refresh pair.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "access_token, refresh_token"
// @Failure      401  {object}  map[string]interface{}  "Invalid refresh token"
// @Router       /api/v1/auth/refresh [post]
// POST /api/v1/auth/refresh
func (h *Handlers) Refresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		access, refresh, err := h.auth.RefreshTokens(c.Request.Context(), req.RefreshToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			} else {
				slog.Error("token refresh failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Token refresh failed"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  access,
			"refresh_token": refresh,
		})
	}
}

// @Summary      Log out
// @Description  Deletes all of the caller's sessions.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Router       /api/v1/auth/logout [post]
// POST /api/v1/auth/logout
func (h *Handlers) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		if err := h.auth.Logout(c.Request.Context(), user.ID); err != nil {
			slog.Error("logout failed", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Logout failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// GET /api/v1/auth/me
func (h *Handlers) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{
			"user":        userJSON(user),
			"auth_method": c.GetString(middleware.AuthMethodKey),
		})
	}
}

// ForgotPasswordRequest carries a password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// @Summary      Request password reset
// @Description  Issues a single-use reset token. The response is identical whether or not the email is registered.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Router       /api/v1/auth/forgot-password [post]
// POST /api/v1/auth/forgot-password
func (h *Handlers) ForgotPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ForgotPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		token, err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email)
		if err != nil {
			slog.Error("password reset request failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Password reset request failed"})
			return
		}
		if token != "" {
			// Token delivery is an email concern; until a mailer is wired the
			// token is only logged at debug level for operator-assisted resets.
			slog.Debug("password reset token issued", "email", req.Email)
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "If the email is registered, a reset link has been sent",
		})
	}
}

// ResetPasswordRequest carries a reset token and replacement password
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/v1/auth/reset-password
func (h *Handlers) ResetPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password)
		if err != nil {
			var verr *auth.ValidationError
			switch {
			case errors.Is(err, auth.ErrInvalidOrExpiredToken):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
			case errors.As(err, &verr):
				c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
			default:
				slog.Error("password reset failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Password reset failed"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
	}
}

// ChangePasswordRequest carries a password change for a logged-in user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// POST /api/v1/auth/change-password
func (h *Handlers) ChangePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		user, _ := middleware.CurrentUser(c)
		err := h.auth.ChangePassword(c.Request.Context(), user.ID, req.CurrentPassword, req.NewPassword)
		if err != nil {
			var verr *auth.ValidationError
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
			case errors.As(err, &verr):
				c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
			default:
				slog.Error("password change failed", "error", err, "user_id", user.ID)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Password change failed"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
	}
}

// @Summary      Regenerate API key
// @Description  Replaces the caller's API key. The old key stops working immediately; the new key is returned once.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "api_key"
// @Router       /api/v1/auth/api-key [post]
// POST /api/v1/auth/api-key
func (h *Handlers) RegenerateAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		key, err := h.auth.RegenerateAPIKey(c.Request.Context(), user.ID)
		if err != nil {
			slog.Error("api key regeneration failed", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "API key regeneration failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"api_key":    key,
			"created_at": time.Now().UTC(),
		})
	}
}

// GET /api/v1/auth/sessions
func (h *Handlers) ListSessions() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		sessions, err := h.auth.ListSessions(c.Request.Context(), user.ID)
		if err != nil {
			slog.Error("failed to list sessions", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
			return
		}

		out := make([]gin.H, 0, len(sessions))
		current, _ := c.Get(middleware.SessionKey)
		for _, s := range sessions {
			entry := sessionJSON(s)
			if cs, ok := current.(*models.Session); ok && cs.ID == s.ID {
				entry["current"] = true
			}
			out = append(out, entry)
		}
		c.JSON(http.StatusOK, gin.H{"sessions": out})
	}
}

// DELETE /api/v1/auth/sessions/:id
func (h *Handlers) RevokeSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		revoked, err := h.auth.RevokeSession(c.Request.Context(), user.ID, c.Param("id"))
		if err != nil {
			slog.Error("failed to revoke session", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke session"})
			return
		}
		if !revoked {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
	}
}
