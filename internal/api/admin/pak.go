// pak.go implements the admin endpoints that surface the pak CLI bridge:
// tool status and the supported platform list.
package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pak-sh/pakweb/internal/pak"
)

// PakHandlers handles pak CLI status endpoints
type PakHandlers struct {
	pak *pak.Service
}

// NewPakHandlers creates a new PakHandlers instance
func NewPakHandlers(pakSvc *pak.Service) *PakHandlers {
	return &PakHandlers{pak: pakSvc}
}

// GET /api/v1/pak/status
func (h *PakHandlers) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.pak.Status(c.Request.Context())
		if err != nil {
			if errors.Is(err, pak.ErrTimeout) {
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": "pak command timed out"})
				return
			}
			slog.Error("pak status failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "pak is not available"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"available": result.ExitCode == 0,
			"exit_code": result.ExitCode,
			"output":    result.Stdout,
		})
	}
}

// GET /api/v1/pak/platforms
func (h *PakHandlers) Platforms() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"platforms": h.pak.Platforms(c.Request.Context()),
		})
	}
}
