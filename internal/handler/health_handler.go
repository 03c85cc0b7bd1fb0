package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatsProvider 报告当前文档数与合并索引分块数，由 registry.Registry 实现。
type StatsProvider interface {
	Stats() (documents, segments int)
}

// Health 返回存活状态与注册表规模。
func Health(stats StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, segs := stats.Stats()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "documents": docs, "segments": segs})
	}
}
