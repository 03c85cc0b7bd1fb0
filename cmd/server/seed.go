package main

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"pdfchat-go/internal/model"
	"pdfchat-go/pkg/log"
)

// documentUploader 由 service.DocumentService 实现。
type documentUploader interface {
	Upload(ctx context.Context, fileName string, data []byte) (model.DocumentInfo, error)
}

// seedDocuments 扫描 dir 下匹配 pattern 的文件并逐个走标准上传流程。
// 单个文件失败只记录日志，返回成功导入的数量。
func seedDocuments(ctx context.Context, dir, pattern string, uploader documentUploader) int {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedDocuments: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return 0
	}
	if pattern == "" {
		pattern = "**/*.pdf"
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		log.Warnf("seedDocuments: 匹配模式 '%s' 无效: %v", pattern, err)
		return 0
	}

	imported := 0
	for _, rel := range matches {
		if ctx.Err() != nil {
			log.Infof("seedDocuments: 已取消, 已导入 %d 个文件", imported)
			return imported
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			log.Warnf("seedDocuments: 读取文件失败: %s, err=%v", rel, err)
			continue
		}
		doc, err := uploader.Upload(ctx, path.Base(rel), data)
		if err != nil {
			log.Warnf("seedDocuments: 导入失败: %s, err=%v", rel, err)
			continue
		}
		imported++
		log.Infof("seedDocuments: 导入完成: %s (id=%s, segments=%d)", doc.Name, doc.ID, doc.SegmentCount)
	}
	return imported
}
