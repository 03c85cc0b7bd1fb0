package registry

import (
	"context"
	"fmt"
	"time"

	"pdfchat-go/internal/vectorindex"
	"pdfchat-go/pkg/log"
)

// 合并索引的三种构建方式，同时作为指标标签。
const (
	mergeEmpty   = "empty"
	mergeAlias   = "alias"
	mergeRebuild = "rebuild"
)

// rebuildMerged 根据当前文档集合计算合并索引，调用方必须持有写锁。
//   - 没有文档：返回 nil
//   - 只有一个文档：直接复用该文档的索引
//   - 两个及以上：从分块存储读取全部分块，重新构建
func (r *Registry) rebuildMerged(ctx context.Context) (*vectorindex.Index, error) {
	start := time.Now()

	switch len(r.docs) {
	case 0:
		r.metrics.ObserveRebuild(mergeEmpty, time.Since(start))
		return nil, nil
	case 1:
		for _, doc := range r.docs {
			r.metrics.ObserveRebuild(mergeAlias, time.Since(start))
			return doc.index, nil
		}
	}

	segments, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取分块存储失败: %w", err)
	}
	expected := 0
	for _, doc := range r.docs {
		expected += len(doc.segments)
	}
	if len(segments) != expected {
		return nil, fmt.Errorf("分块存储与注册表不一致: 存储中 %d 个分块, 注册表中 %d 个", len(segments), expected)
	}

	merged, err := vectorindex.Build(ctx, r.embedder, segments, r.workers)
	if err != nil {
		return nil, fmt.Errorf("重建合并索引失败: %w", err)
	}
	elapsed := time.Since(start)
	r.metrics.ObserveRebuild(mergeRebuild, elapsed)
	log.Infof("[Registry] 合并索引重建完成, 文档数: %d, 分块数: %d, 耗时: %s", len(r.docs), merged.Len(), elapsed)
	return merged, nil
}
