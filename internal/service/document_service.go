package service

import (
	"context"
	"errors"
	"time"

	"pdfchat-go/internal/model"
	"pdfchat-go/internal/registry"
	"pdfchat-go/pkg/kafka"
	"pdfchat-go/pkg/log"
)

var (
	// ErrDocumentNotFound 表示文档 ID 不存在。
	ErrDocumentNotFound = errors.New("document not found")
	// ErrArchiveDisabled 表示未启用对象存储，无法下载原始文件。
	ErrArchiveDisabled = errors.New("document archive is disabled")
)

// DocumentArchive 保存原始文件，由 storage.Archive 实现。
type DocumentArchive interface {
	Put(ctx context.Context, documentID, fileName string, data []byte) error
	Remove(ctx context.Context, documentID, fileName string) error
	PresignedURL(ctx context.Context, documentID, fileName string) (string, error)
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, fileName string, data []byte) (model.DocumentInfo, error)
	List() map[string]string
	ListDetailed() []model.DocumentInfo
	Get(id string) (model.DocumentInfo, error)
	Delete(ctx context.Context, id string) (bool, error)
	DownloadURL(ctx context.Context, id string) (string, error)
}

// 发送文档事件的最长等待时间，超时后只记录日志。
const defaultPublishTimeout = 5 * time.Second

type documentService struct {
	registry       *registry.Registry
	archive        DocumentArchive
	publisher      kafka.EventPublisher
	publishTimeout time.Duration
}

// NewDocumentService 创建一个新的 DocumentService 实例。archive 为 nil 表示不归档原始文件。
func NewDocumentService(reg *registry.Registry, archive DocumentArchive, publisher kafka.EventPublisher) DocumentService {
	if publisher == nil {
		publisher = kafka.NoopPublisher{}
	}
	return &documentService{registry: reg, archive: archive, publisher: publisher, publishTimeout: defaultPublishTimeout}
}

// Upload 注册文档；归档与事件发送是附属操作，失败只记录日志。
func (s *documentService) Upload(ctx context.Context, fileName string, data []byte) (model.DocumentInfo, error) {
	id, err := s.registry.AddDocument(ctx, data, fileName)
	if err != nil {
		return model.DocumentInfo{}, err
	}
	info, _ := s.registry.Document(id)

	if s.archive != nil {
		if err := s.archive.Put(ctx, id, fileName, data); err != nil {
			log.Warnf("[DocumentService] 归档原始文件失败, ID: %s, Error: %v", id, err)
		}
	}
	s.publish(ctx, model.DocumentEvent{
		Type:         model.EventDocumentAdded,
		DocumentID:   id,
		DocumentName: fileName,
		SegmentCount: info.SegmentCount,
		OccurredAt:   time.Now(),
	})
	if info.ID == "" {
		// 上传完成后立刻被并发删除
		info = model.DocumentInfo{ID: id, Name: fileName}
	}
	return info, nil
}

func (s *documentService) List() map[string]string {
	return s.registry.ListDocuments()
}

func (s *documentService) ListDetailed() []model.DocumentInfo {
	return s.registry.Documents()
}

func (s *documentService) Get(id string) (model.DocumentInfo, error) {
	info, ok := s.registry.Document(id)
	if !ok {
		return model.DocumentInfo{}, ErrDocumentNotFound
	}
	return info, nil
}

// Delete 删除文档。未知 ID 返回 false 且不是错误。
func (s *documentService) Delete(ctx context.Context, id string) (bool, error) {
	name, known := s.registry.DisplayName(id)
	removed, err := s.registry.RemoveDocument(ctx, id)
	if err != nil || !removed {
		return removed, err
	}

	if s.archive != nil && known {
		if err := s.archive.Remove(ctx, id, name); err != nil {
			log.Warnf("[DocumentService] 删除归档文件失败, ID: %s, Error: %v", id, err)
		}
	}
	s.publish(ctx, model.DocumentEvent{
		Type:         model.EventDocumentRemoved,
		DocumentID:   id,
		DocumentName: name,
		OccurredAt:   time.Now(),
	})
	return true, nil
}

// DownloadURL 返回原始文件的预签名下载链接。
func (s *documentService) DownloadURL(ctx context.Context, id string) (string, error) {
	name, ok := s.registry.DisplayName(id)
	if !ok {
		return "", ErrDocumentNotFound
	}
	if s.archive == nil {
		return "", ErrArchiveDisabled
	}
	return s.archive.PresignedURL(ctx, id, name)
}

func (s *documentService) publish(ctx context.Context, event model.DocumentEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warnf("[DocumentService] 发送文档事件失败, Type: %s, ID: %s, Error: %v", event.Type, event.DocumentID, err)
	}
}
