// Package pipeline 定义了文件处理的核心流程：校验、解析分页文本、切块。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"pdfchat-go/internal/config"
	"pdfchat-go/internal/model"
	"pdfchat-go/pkg/log"
)

const pdfMIME = "application/pdf"

// Decoder 把原始字节解析为按页排列的文本。
type Decoder interface {
	Pages(ctx context.Context, data []byte, fileName string) ([]string, error)
}

// ErrUndecodable 由 Decoder 实现包装返回，表示文档本身无法解析（损坏、加密或格式不支持）。
// 其他解析错误（例如解析服务不可用）不属于文档问题，原样返回给调用方。
var ErrUndecodable = errors.New("document cannot be decoded")

// IngestionError 表示文档无法被接收：不是 PDF、无法解析或没有可提取的文本。
type IngestionError struct {
	FileName string
	Reason   string
	Err      error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("无法处理文件 %q: %s: %v", e.FileName, e.Reason, e.Err)
	}
	return fmt.Sprintf("无法处理文件 %q: %s", e.FileName, e.Reason)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Processor 封装了文件处理的所有依赖和逻辑。
type Processor struct {
	decoder Decoder
	chunker *Chunker
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(decoder Decoder, cfg config.ChunkingConfig) *Processor {
	return &Processor{
		decoder: decoder,
		chunker: NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
	}
}

// Validate 检查扩展名与内容嗅探结果，二者都必须是 PDF。
func (p *Processor) Validate(data []byte, fileName string) error {
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return &IngestionError{FileName: fileName, Reason: "只支持 PDF 文件"}
	}
	if len(data) == 0 {
		return &IngestionError{FileName: fileName, Reason: "文件内容为空"}
	}
	if mt := mimetype.Detect(data); !mt.Is(pdfMIME) {
		return &IngestionError{FileName: fileName, Reason: fmt.Sprintf("文件内容类型为 %s, 不是 PDF", mt.String())}
	}
	return nil
}

// Process 校验并解析文档，返回带有文档身份信息的分块。
// docID 由调用方生成，相同字节与配置总是得到相同的分块边界。
func (p *Processor) Process(ctx context.Context, docID, docName string, data []byte) ([]model.Segment, error) {
	log.Infof("[Processor] 开始处理文件, DocumentID: %s, FileName: %s, Size: %d", docID, docName, len(data))

	if err := p.Validate(data, docName); err != nil {
		log.Warnf("[Processor] 文件校验未通过: %v", err)
		return nil, err
	}

	pages, err := p.decoder.Pages(ctx, data, docName)
	if err != nil {
		if errors.Is(err, ErrUndecodable) {
			log.Warnf("[Processor] 文件无法解析, FileName: %s, Error: %v", docName, err)
			return nil, &IngestionError{FileName: docName, Reason: "文件无法解析", Err: err}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		log.Errorf("[Processor] 调用解析服务失败, FileName: %s, Error: %v", docName, err)
		return nil, fmt.Errorf("调用解析服务失败: %w", err)
	}
	log.Infof("[Processor] 解析完成, 共 %d 页", len(pages))

	var segments []model.Segment
	for i, page := range pages {
		for _, chunk := range p.chunker.Split(page) {
			position := len(segments)
			segments = append(segments, model.Segment{
				SegmentID:    fmt.Sprintf("%s_%d", docID, position),
				DocumentID:   docID,
				DocumentName: docName,
				Page:         i + 1,
				Position:     position,
				TextContent:  chunk,
			})
		}
	}
	if len(segments) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, FileName: %s", docName)
		return nil, &IngestionError{FileName: docName, Reason: "没有可提取的文本"}
	}

	log.Infof("[Processor] 文件处理完成, DocumentID: %s, 共生成 %d 个分块", docID, len(segments))
	return segments, nil
}
