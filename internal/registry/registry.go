// Package registry 管理已注册文档及其索引，是文档增删的唯一入口。
//
// 所有变更（新增、删除以及随之触发的合并索引重建）都在同一把写锁内完成，
// 因此任何读者都不会看到文档集合与合并索引内容不一致的状态。
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"pdfchat-go/internal/model"
	"pdfchat-go/internal/pipeline"
	"pdfchat-go/internal/repository"
	"pdfchat-go/internal/vectorindex"
	"pdfchat-go/pkg/embedding"
	"pdfchat-go/pkg/log"
	"pdfchat-go/pkg/metrics"
)

// document 是注册表中的一项，创建后不再修改。
type document struct {
	id        string
	name      string
	seq       uint64
	segments  []model.Segment
	index     *vectorindex.Index
	createdAt time.Time
}

func (d *document) info() model.DocumentInfo {
	pages := 0
	for _, s := range d.segments {
		if s.Page > pages {
			pages = s.Page
		}
	}
	return model.DocumentInfo{
		ID:           d.id,
		Name:         d.name,
		SegmentCount: len(d.segments),
		PageCount:    pages,
		CreatedAt:    model.LocalTime(d.createdAt),
	}
}

// Registry 持有文档集合、分块存储与当前的合并索引。
type Registry struct {
	processor *pipeline.Processor
	embedder  embedding.Client
	store     repository.SegmentRepository
	metrics   *metrics.Metrics
	workers   int

	seq atomic.Uint64

	mu     sync.RWMutex
	docs   map[string]*document
	merged *vectorindex.Index
}

// New 创建一个空的 Registry，并清空分块存储中上一次进程遗留的数据。
func New(ctx context.Context, processor *pipeline.Processor, embedder embedding.Client,
	store repository.SegmentRepository, m *metrics.Metrics, workers int) (*Registry, error) {
	if err := store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("清空分块存储失败: %w", err)
	}
	r := &Registry{
		processor: processor,
		embedder:  embedder,
		store:     store,
		metrics:   m,
		workers:   workers,
		docs:      make(map[string]*document),
	}
	r.metrics.SetRegistrySize(0, 0)
	return r, nil
}

// AddDocument 解析并注册一个文档，返回新生成的文档 ID。
// 解析、切块与单文档索引在加锁前完成；写入分块存储与重建合并索引在写锁内完成，
// 任一步失败都会撤销已写入的分块，之前的合并索引继续生效。
func (r *Registry) AddDocument(ctx context.Context, data []byte, name string) (string, error) {
	id := uuid.NewString()
	seq := r.seq.Add(1)

	segments, err := r.processor.Process(ctx, id, name, data)
	if err != nil {
		return "", err
	}
	for i := range segments {
		segments[i].Seq = seq
	}

	index, err := vectorindex.Build(ctx, r.embedder, segments, r.workers)
	if err != nil {
		return "", fmt.Errorf("构建文档索引失败: %w", err)
	}

	doc := &document{id: id, name: name, seq: seq, segments: segments, index: index, createdAt: time.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.BatchCreate(ctx, segments); err != nil {
		return "", fmt.Errorf("保存文档分块失败: %w", err)
	}
	r.docs[id] = doc

	merged, err := r.rebuildMerged(ctx)
	if err != nil {
		delete(r.docs, id)
		if _, delErr := r.store.DeleteByDocumentID(context.WithoutCancel(ctx), id); delErr != nil {
			log.Errorf("[Registry] 回滚文档 %s 的分块失败: %v", id, delErr)
		}
		return "", err
	}
	r.merged = merged
	r.observeSize()

	log.Infof("[Registry] 文档注册成功, ID: %s, Name: %s, 分块数: %d, 当前文档数: %d", id, name, len(segments), len(r.docs))
	return id, nil
}

// RemoveDocument 删除文档及其分块并重建合并索引。
// 未知 ID 返回 false 且不改变任何状态；重建失败时撤销删除并返回错误。
func (r *Registry) RemoveDocument(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return false, nil
	}

	if _, err := r.store.DeleteByDocumentID(ctx, id); err != nil {
		return false, fmt.Errorf("删除文档分块失败: %w", err)
	}
	delete(r.docs, id)

	merged, err := r.rebuildMerged(ctx)
	if err != nil {
		r.docs[id] = doc
		if restoreErr := r.store.BatchCreate(context.WithoutCancel(ctx), doc.segments); restoreErr != nil {
			log.Errorf("[Registry] 恢复文档 %s 的分块失败: %v", id, restoreErr)
		}
		return false, err
	}
	r.merged = merged
	r.observeSize()

	log.Infof("[Registry] 文档已删除, ID: %s, Name: %s, 剩余文档数: %d", id, doc.name, len(r.docs))
	return true, nil
}

// ListDocuments 返回 id → 文件名 的映射。
func (r *Registry) ListDocuments() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.docs))
	for id, doc := range r.docs {
		out[id] = doc.name
	}
	return out
}

// DisplayName 返回文档的文件名。
func (r *Registry) DisplayName(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return "", false
	}
	return doc.name, true
}

// Document 返回单个文档的详情。
func (r *Registry) Document(id string) (model.DocumentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return model.DocumentInfo{}, false
	}
	return doc.info(), true
}

// Documents 按注册顺序返回所有文档详情。
func (r *Registry) Documents() []model.DocumentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := make([]*document, 0, len(r.docs))
	for _, doc := range r.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })

	out := make([]model.DocumentInfo, len(docs))
	for i, doc := range docs {
		out[i] = doc.info()
	}
	return out
}

// Merged 返回当前合并索引，没有文档时返回 nil。索引不可变，可在锁外检索。
func (r *Registry) Merged() *vectorindex.Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.merged
}

// Stats 返回文档数与合并索引中的分块数。
func (r *Registry) Stats() (documents, segments int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statsLocked()
}

func (r *Registry) statsLocked() (int, int) {
	if r.merged == nil {
		return len(r.docs), 0
	}
	return len(r.docs), r.merged.Len()
}

func (r *Registry) observeSize() {
	docs, segs := r.statsLocked()
	r.metrics.SetRegistrySize(docs, segs)
}

// Close 清空注册表与分块存储。
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = make(map[string]*document)
	r.merged = nil
	r.observeSize()
	return r.store.Reset(ctx)
}
