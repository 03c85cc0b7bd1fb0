// Package model 定义了应用的数据模型与对外 DTO。
package model

// Segment 是检索的最小单位：一段带有文档身份元数据的连续文本。
// 它同时映射为 segments 表中的一行，作为合并索引重建时的权威来源。
// 创建后不再修改。
type Segment struct {
	SegmentID    string `gorm:"primaryKey;type:varchar(80);column:segment_id" json:"segmentId"`
	DocumentID   string `gorm:"type:varchar(36);not null;index;column:document_id" json:"documentId"`
	DocumentName string `gorm:"type:varchar(255);not null;column:document_name" json:"documentName"`
	Page         int    `gorm:"not null;column:page" json:"page"`
	Position     int    `gorm:"not null;column:position" json:"position"`
	TextContent  string `gorm:"type:text;column:text_content" json:"textContent"`
	// Seq 为文档的注册序号，合并索引按 (seq, position) 顺序拼接。
	Seq uint64 `gorm:"not null;index;column:seq" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Segment) TableName() string {
	return "segments"
}
