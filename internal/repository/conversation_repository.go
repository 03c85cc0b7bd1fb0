// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"pdfchat-go/internal/model"
)

const (
	defaultHistoryLimit = 20
	defaultHistoryTTL   = 7 * 24 * time.Hour
)

// ConversationRepository 定义了会话记录的操作接口。
// 记录仅用于展示，不会作为上下文回传给模型。
type ConversationRepository interface {
	GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	AppendConversationHistory(ctx context.Context, sessionID string, messages ...model.ChatMessage) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
	limit       int
	ttl         time.Duration
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, limit: defaultHistoryLimit, ttl: defaultHistoryTTL}
}

func conversationKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s", sessionID)
}

// GetConversationHistory 从 Redis 列表读取会话记录，按时间先后排列。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, conversationKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// AppendConversationHistory 在一个事务中追加消息、截断到最近 limit 条并刷新过期时间。
// 同一会话的并发追加不会互相覆盖。
func (r *redisConversationRepository) AppendConversationHistory(ctx context.Context, sessionID string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, len(messages))
	for i, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation message: %w", err)
		}
		values[i] = raw
	}

	key := conversationKey(sessionID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-r.limit), -1)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}
