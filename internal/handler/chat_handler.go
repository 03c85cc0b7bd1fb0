package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"pdfchat-go/internal/model"
	"pdfchat-go/internal/service"
	"pdfchat-go/pkg/llm"
	"pdfchat-go/pkg/log"
)

// 单条 WebSocket 消息的最大字节数。
const maxWSMessageBytes = 1 << 20

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// chatRequest 是 /chat 与 /chat/ws 的请求体。
type chatRequest struct {
	Query       string              `json:"query" binding:"required"`
	APIKey      string              `json:"api_key" binding:"required"`
	ModelType   string              `json:"model_type" binding:"required"`
	ModelName   string              `json:"model_name" binding:"required"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
	SessionID   string              `json:"session_id"`
	History     []model.ChatMessage `json:"history"`
}

func (r chatRequest) toServiceRequest() (service.ChatRequest, error) {
	provider, err := llm.ParseProvider(r.ModelType)
	if err != nil {
		return service.ChatRequest{}, err
	}
	return service.ChatRequest{
		Query: r.Query,
		Settings: llm.Settings{
			Provider:    provider,
			Model:       r.ModelName,
			APIKey:      r.APIKey,
			Temperature: r.Temperature,
			MaxTokens:   r.MaxTokens,
		},
		SessionID: r.SessionID,
		History:   r.History,
	}, nil
}

type chatResponse struct {
	Response    string            `json:"response"`
	Sources     []model.SourceDTO `json:"sources"`
	NoDocuments bool              `json:"no_documents,omitempty"`
}

// ChatHandler 负责处理问答请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 处理 POST /chat。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数无效: " + err.Error()})
		return
	}
	svcReq, err := req.toServiceRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.chatService.Chat(c.Request.Context(), svcReq)
	if err != nil {
		status := chatErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Errorf("Chat: 问答失败, Status: %d, Error: %v", status, err)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, chatResponse{Response: answer.Text, Sources: answer.Sources, NoDocuments: answer.NoDocuments})
}

// Handle 处理一个 WebSocket 连接：每收到一条 JSON 请求，回复一条完整的 JSON 答案。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSMessageBytes)

	log.Infof("WebSocket 连接已建立, RemoteAddr: %s", conn.RemoteAddr())
	ctx := c.Request.Context()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var reply gin.H
		svcReq, err := req.toServiceRequest()
		if err == nil && req.Query == "" {
			err = errors.New("query is required")
		}
		if err != nil {
			reply = gin.H{"type": "error", "status": http.StatusBadRequest, "error": err.Error()}
		} else if answer, chatErr := h.chatService.Chat(ctx, svcReq); chatErr != nil {
			reply = gin.H{"type": "error", "status": chatErrorStatus(chatErr), "error": chatErr.Error()}
		} else {
			reply = gin.H{
				"type":         "answer",
				"response":     answer.Text,
				"sources":      answer.Sources,
				"no_documents": answer.NoDocuments,
			}
		}

		if err := conn.WriteJSON(reply); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			return
		}
	}
}

// chatErrorStatus 把问答错误映射为 HTTP 状态码：超时 504，其他生成错误 502。
func chatErrorStatus(err error) int {
	var genErr *llm.GenerationError
	switch {
	case errors.Is(err, service.ErrInvalidGeneratorSettings), errors.Is(err, service.ErrInvalidHistory):
		return http.StatusBadRequest
	case errors.Is(err, llm.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
