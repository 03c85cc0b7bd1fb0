package repository

import (
	"context"

	"gorm.io/gorm"
	"pdfchat-go/internal/model"
)

// SegmentRepository 定义了对 segments 表的数据操作接口。
// segments 表是合并索引重建时的权威数据来源。
type SegmentRepository interface {
	BatchCreate(ctx context.Context, segments []model.Segment) error
	DeleteByDocumentID(ctx context.Context, documentID string) (int64, error)
	ListAll(ctx context.Context) ([]model.Segment, error)
	Reset(ctx context.Context) error
}

type segmentRepository struct {
	db *gorm.DB
}

// NewSegmentRepository 创建一个新的 SegmentRepository 实例。
func NewSegmentRepository(db *gorm.DB) SegmentRepository {
	return &segmentRepository{db: db}
}

// BatchCreate 在一个事务中批量写入分块，失败时不留下部分记录。
func (r *segmentRepository) BatchCreate(ctx context.Context, segments []model.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(segments, 100).Error // 每100条记录一批
	})
}

// DeleteByDocumentID 删除某个文档的全部分块，返回删除的行数。
func (r *segmentRepository) DeleteByDocumentID(ctx context.Context, documentID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Segment{})
	return result.RowsAffected, result.Error
}

// ListAll 按 (seq, position) 顺序返回所有分块，即文档注册顺序下的拼接结果。
func (r *segmentRepository) ListAll(ctx context.Context) ([]model.Segment, error) {
	var segments []model.Segment
	err := r.db.WithContext(ctx).Order("seq ASC").Order("position ASC").Find(&segments).Error
	return segments, err
}

// Reset 清空 segments 表。服务不跨进程保留文档，启动时调用。
func (r *segmentRepository) Reset(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Segment{}).Error
}
