// Package vectorindex 提供基于余弦相似度的内存向量索引。
// 索引在 Build 之后不可变，可被多个 goroutine 并发检索。
package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"pdfchat-go/internal/model"
	"pdfchat-go/pkg/embedding"
)

// Hit 是一次检索命中的分块及其相似度。
type Hit struct {
	Segment model.Segment
	Score   float64
}

// Index 保存分块与对应向量，顺序与构建时传入的分块一致。
type Index struct {
	embedder embedding.Client
	segments []model.Segment
	vectors  [][]float32
}

// Build 对每个分块并发计算向量，最多 workers 个并发请求。任一分块失败则整体失败。
func Build(ctx context.Context, embedder embedding.Client, segments []model.Segment, workers int) (*Index, error) {
	if workers <= 0 {
		workers = 1
	}
	vectors := make([][]float32, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range segments {
		i := i
		g.Go(func() error {
			vec, err := embedder.CreateEmbedding(gctx, segments[i].TextContent)
			if err != nil {
				return fmt.Errorf("分块 %s 向量化失败: %w", segments[i].SegmentID, err)
			}
			if len(vec) != embedder.Dimension() {
				return fmt.Errorf("分块 %s 向量维度为 %d, 期望 %d", segments[i].SegmentID, len(vec), embedder.Dimension())
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	owned := make([]model.Segment, len(segments))
	copy(owned, segments)
	return &Index{embedder: embedder, segments: owned, vectors: vectors}, nil
}

// Search 返回与 query 最相似的至多 k 个分块，按相似度降序；相同分数保持插入顺序。
func (idx *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 || len(idx.segments) == 0 {
		return nil, nil
	}
	q, err := idx.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	hits := make([]Hit, len(idx.segments))
	for i, vec := range idx.vectors {
		hits[i] = Hit{Segment: idx.segments[i], Score: cosineSimilarity(q, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Segments 返回索引内分块的副本。
func (idx *Index) Segments() []model.Segment {
	out := make([]model.Segment, len(idx.segments))
	copy(out, idx.segments)
	return out
}

// Len 返回分块数量。
func (idx *Index) Len() int {
	return len(idx.segments)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
