// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"pdfchat-go/pkg/log"
)

// 请求与响应体在日志中的最大长度。
const maxLoggedBody = 2048

var redactedFields = []string{"api_key"}

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 只记录 JSON 请求体，并隐去其中的凭据字段；上传的文件内容不会进入日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		startTime := time.Now()

		var requestBody string
		if c.Request.Body != nil && strings.HasPrefix(c.ContentType(), "application/json") {
			raw, _ := io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))
			requestBody = redactJSON(raw)
		}

		// 使用自定义的 ResponseWriter 捕获响应
		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		// 处理请求
		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", requestBody,
			"responseBody", blw.body.String(),
		)
	}
}

// redactJSON 隐去凭据字段并截断过长内容；无法解析时用占位符代替。
func redactJSON(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "<unparsable json body>"
	}
	for _, key := range redactedFields {
		if _, ok := fields[key]; ok {
			fields[key] = "***"
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	if len(out) > maxLoggedBody {
		return string(out[:maxLoggedBody]) + "..."
	}
	return string(out)
}
