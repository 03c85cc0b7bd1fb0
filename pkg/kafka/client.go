// Package kafka 提供了向 Kafka 发送文档生命周期事件的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"pdfchat-go/internal/config"
	"pdfchat-go/internal/model"
	"pdfchat-go/pkg/log"
)

// EventPublisher 发送文档事件。发送失败由调用方记录，不影响文档操作本身。
type EventPublisher interface {
	Publish(ctx context.Context, event model.DocumentEvent) error
	Close() error
}

// NewPublisher 根据配置创建 EventPublisher；未启用 Kafka 时返回空实现。
func NewPublisher(cfg config.KafkaConfig) EventPublisher {
	if !cfg.Enabled {
		log.Info("Kafka 未启用, 文档事件不会被发送")
		return NoopPublisher{}
	}
	brokers := strings.Split(cfg.Brokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	log.Infof("Kafka 生产者初始化成功, Topic: %s", cfg.Topic)
	return &kafkaPublisher{writer: writer}
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

// Publish 以文档 ID 作为消息 key，同一文档的事件落在同一分区内保持顺序。
func (p *kafkaPublisher) Publish(ctx context.Context, event model.DocumentEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送文档事件失败: %w", err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeEvent(event model.DocumentEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("序列化文档事件失败: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.DocumentID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}, nil
}

// NoopPublisher 丢弃所有事件。
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.DocumentEvent) error { return nil }
func (NoopPublisher) Close() error                                      { return nil }
