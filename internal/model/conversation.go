package model

import "time"

// ChatMessage 代表一条对话消息，既用于调用方传入的历史，也用于 Redis 中的会话记录。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
