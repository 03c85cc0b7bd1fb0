package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"pdfchat-go/internal/service"
	"pdfchat-go/pkg/log"
)

// SessionHandler 返回 Redis 中保存的会话记录。
type SessionHandler struct {
	chatService service.ChatService
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(chatService service.ChatService) *SessionHandler {
	return &SessionHandler{chatService: chatService}
}

// History 处理 GET /sessions/:id/history。
func (h *SessionHandler) History(c *gin.Context) {
	sessionID := c.Param("id")
	messages, err := h.chatService.History(c.Request.Context(), sessionID)
	if errors.Is(err, service.ErrTranscriptDisabled) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "未启用 Redis, 会话记录不可用"})
		return
	}
	if err != nil {
		log.Errorf("History: 获取会话记录失败, SessionID: %s, Error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取会话记录失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取会话记录成功",
		"data":    gin.H{"session_id": sessionID, "messages": messages},
	})
}
