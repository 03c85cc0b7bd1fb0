// Package pdftext 在进程内解析 PDF，不依赖外部 Tika 服务。
package pdftext

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"pdfchat-go/internal/pipeline"
)

// ErrInvalidPDF 表示文档无法被解析（损坏或加密），包装了 pipeline.ErrUndecodable。
var ErrInvalidPDF = fmt.Errorf("pdftext: invalid or encrypted pdf: %w", pipeline.ErrUndecodable)

// Decoder 使用 ledongthuc/pdf 逐页提取纯文本。
type Decoder struct{}

// NewDecoder 创建本地 PDF 解析器。
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Pages 返回按页顺序排列的文本；空白页对应空字符串，以保持页码不变。
func (d *Decoder) Pages(ctx context.Context, data []byte, fileName string) (pages []string, err error) {
	// 底层库在遇到畸形对象时可能 panic，这里统一转换为错误。
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %s: %v", ErrInvalidPDF, fileName, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPDF, fileName, err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s 第 %d 页: %v", ErrInvalidPDF, fileName, i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
