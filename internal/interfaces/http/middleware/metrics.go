package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts, durations and in-flight requests.  The
// path label is the matched route template so ids do not explode the label
// space; unmatched requests share the "unmatched" label.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		active := m.HTTPActiveRequests.WithLabelValues(c.Request.Method, path)
		active.Inc()
		defer active.Dec()

		start := time.Now()
		c.Next()
		prometheus.RecordHTTPRequest(m, c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
