package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"pdfchat-go/pkg/metrics"
)

// Metrics 记录每个请求的次数与耗时，path 使用路由模板以控制标签基数。
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
