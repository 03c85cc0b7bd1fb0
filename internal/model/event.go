package model

import "time"

// 文档生命周期事件类型。
const (
	EventDocumentAdded   = "document.added"
	EventDocumentRemoved = "document.removed"
)

// DocumentEvent 是发送到 Kafka 的文档生命周期事件。
type DocumentEvent struct {
	Type         string    `json:"type"`
	DocumentID   string    `json:"pdf_id"`
	DocumentName string    `json:"pdf_name"`
	SegmentCount int       `json:"segment_count,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
