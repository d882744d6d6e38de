package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/observability"
)

// MetricsMiddleware 记录请求数和耗时，path 使用路由模板避免标签爆炸
func MetricsMiddleware(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
