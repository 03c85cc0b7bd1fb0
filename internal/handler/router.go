package handler

import (
	"github.com/gin-gonic/gin"
	"pdfchat-go/internal/middleware"
	"pdfchat-go/pkg/metrics"
)

// RouterDeps 汇总路由所需的处理器。
type RouterDeps struct {
	Documents *DocumentHandler
	Chat      *ChatHandler
	Sessions  *SessionHandler
	Stats     StatsProvider
	Metrics   *metrics.Metrics
}

// NewRouter 注册全部路由。
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics(deps.Metrics))

	r.GET("/health", Health(deps.Stats))
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	r.POST("/upload", deps.Documents.Upload)
	pdfs := r.Group("/pdfs")
	{
		pdfs.GET("", deps.Documents.List)
		pdfs.GET("/details", deps.Documents.ListDetailed)
		pdfs.GET("/:id", deps.Documents.Get)
		pdfs.GET("/:id/download", deps.Documents.Download)
		pdfs.DELETE("/:id", deps.Documents.Delete)
	}

	r.POST("/chat", deps.Chat.Chat)
	r.GET("/chat/ws", deps.Chat.Handle)
	r.GET("/sessions/:id/history", deps.Sessions.History)
	return r
}
