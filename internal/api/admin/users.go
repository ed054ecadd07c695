// users.go implements the admin user management endpoints: listing, updating,
// unlocking, and deleting console accounts.
package admin

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pak-sh/pakweb/internal/db/models"
	"github.com/pak-sh/pakweb/internal/db/repositories"
	"github.com/pak-sh/pakweb/internal/middleware"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	users    *repositories.UserRepository
	sessions *repositories.SessionRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(db *sql.DB) *UserHandlers {
	return &UserHandlers{
		users:    repositories.NewUserRepository(db),
		sessions: repositories.NewSessionRepository(db),
	}
}

// adminUserJSON shapes a user for admin responses, including the lockout state
// hidden from self-service endpoints.
func adminUserJSON(u *models.User) gin.H {
	return gin.H{
		"id":                    u.ID,
		"email":                 u.Email,
		"name":                  u.Name,
		"is_admin":              u.IsAdmin,
		"is_active":             u.IsActive,
		"email_verified":        u.EmailVerified,
		"failed_login_attempts": u.FailedLoginAttempts,
		"locked_until":          u.LockedUntil,
		"last_login":            u.LastLogin,
		"api_quota_daily":       u.APIQuotaDaily,
		"api_quota_monthly":     u.APIQuotaMonthly,
		"created_at":            u.CreatedAt,
		"updated_at":            u.UpdatedAt,
	}
}

// GET /api/v1/admin/users?page=1&per_page=20
func (h *UserHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		users, total, err := h.users.List(c.Request.Context(), perPage, (page-1)*perPage)
		if err != nil {
			slog.Error("failed to list users", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		out := make([]gin.H, 0, len(users))
		for _, u := range users {
			out = append(out, adminUserJSON(u))
		}
		c.JSON(http.StatusOK, gin.H{
			"users": out,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// loadUser fetches a user by path param, answering 404 when absent
func (h *UserHandlers) loadUser(c *gin.Context) *models.User {
	user, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		slog.Error("failed to load user", "error", err, "user_id", c.Param("id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return nil
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return nil
	}
	return user
}

// GET /api/v1/admin/users/:id
func (h *UserHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := h.loadUser(c)
		if user == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": adminUserJSON(user)})
	}
}

// UpdateUserRequest carries admin-mutable account fields; nil means unchanged
type UpdateUserRequest struct {
	Name            *string `json:"name"`
	IsAdmin         *bool   `json:"is_admin"`
	IsActive        *bool   `json:"is_active"`
	APIQuotaDaily   *int    `json:"api_quota_daily"`
	APIQuotaMonthly *int    `json:"api_quota_monthly"`
}

// PUT /api/v1/admin/users/:id
func (h *UserHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		user := h.loadUser(c)
		if user == nil {
			return
		}

		// Admins cannot strip their own admin bit; another admin has to do it.
		caller, _ := middleware.CurrentUser(c)
		if req.IsAdmin != nil && !*req.IsAdmin && caller.ID == user.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove your own admin access"})
			return
		}

		if req.Name != nil {
			user.Name = *req.Name
		}
		if req.IsAdmin != nil {
			user.IsAdmin = *req.IsAdmin
		}
		if req.IsActive != nil {
			user.IsActive = *req.IsActive
		}
		if req.APIQuotaDaily != nil {
			user.APIQuotaDaily = *req.APIQuotaDaily
		}
		if req.APIQuotaMonthly != nil {
			user.APIQuotaMonthly = *req.APIQuotaMonthly
		}

		if err := h.users.Update(c.Request.Context(), user); err != nil {
			slog.Error("failed to update user", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}

		// Disabling an account also revokes its live sessions.
		if req.IsActive != nil && !*req.IsActive {
			if _, err := h.sessions.DeleteByUser(c.Request.Context(), user.ID); err != nil {
				slog.Error("failed to revoke sessions for disabled user", "error", err, "user_id", user.ID)
			}
		}

		c.JSON(http.StatusOK, gin.H{"user": adminUserJSON(user)})
	}
}

// DELETE /api/v1/admin/users/:id
func (h *UserHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := h.loadUser(c)
		if user == nil {
			return
		}

		caller, _ := middleware.CurrentUser(c)
		if caller.ID == user.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete your own account"})
			return
		}

		if err := h.users.Delete(c.Request.Context(), user.ID); err != nil {
			slog.Error("failed to delete user", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}

// POST /api/v1/admin/users/:id/unlock
// Clears the failed-login counter and any active lock.
func (h *UserHandlers) Unlock() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := h.loadUser(c)
		if user == nil {
			return
		}

		if err := h.users.Unlock(c.Request.Context(), user.ID); err != nil {
			slog.Error("failed to unlock user", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unlock user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Account unlocked"})
	}
}
