// metrics.go records Prometheus request metrics for every route.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pak-sh/pakweb/internal/telemetry"
)

// Metrics records http_requests_total and http_request_duration_seconds for
// every request. The path label uses the matched route template
// (e.g. /api/v1/projects/:id) rather than the raw URL; requests that match no
// route use "<no-route>" so unhandled paths cannot inflate label cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
