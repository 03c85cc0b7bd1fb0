package model

// DocumentInfo 是返回给前端的单个文档详情。
type DocumentInfo struct {
	ID           string    `json:"pdf_id"`
	Name         string    `json:"pdf_name"`
	SegmentCount int       `json:"segment_count"`
	PageCount    int       `json:"page_count"`
	CreatedAt    LocalTime `json:"created_at"`
}

// SourceDTO 描述一次回答所引用的检索片段。
type SourceDTO struct {
	DocumentID   string  `json:"pdf_id"`
	DocumentName string  `json:"pdf_name"`
	Page         int     `json:"page"`
	Position     int     `json:"position"`
	Score        float64 `json:"score"`
}
