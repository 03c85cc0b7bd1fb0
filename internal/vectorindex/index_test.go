package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdfchat-go/internal/model"
	"pdfchat-go/pkg/embedding"
)

func segs(texts ...string) []model.Segment {
	out := make([]model.Segment, len(texts))
	for i, text := range texts {
		out[i] = model.Segment{SegmentID: fmt.Sprintf("d_%d", i), DocumentID: "d", DocumentName: "d.pdf", Position: i, TextContent: text}
	}
	return out
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	idx, err := Build(context.Background(), embedding.NewHashClient(256), segs(
		"Bananas are yellow fruit grown in the tropics.",
		"The Eiffel Tower is located in Paris, France.",
		"Go channels coordinate goroutines.",
	), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Search(context.Background(), "Where is the Eiffel Tower located?", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "d_1", hits[0].Segment.SegmentID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	idx, err := Build(context.Background(), embedding.NewHashClient(64), segs("same text", "same text", "same text"), 3)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), "same text", 5)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Segment.Position)
	}
}

func TestSearch_EmptyIndexAndZeroK(t *testing.T) {
	idx, err := Build(context.Background(), embedding.NewHashClient(8), nil, 1)
	require.NoError(t, err)
	hits, err := idx.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	idx, err = Build(context.Background(), embedding.NewHashClient(8), segs("a"), 1)
	require.NoError(t, err)
	hits, err = idx.Search(context.Background(), "a", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

type failingClient struct {
	embedding.Client
	failOn string
	calls  int32
}

func (f *failingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if text == f.failOn {
		return nil, errors.New("backend unavailable")
	}
	return f.Client.CreateEmbedding(ctx, text)
}

func TestBuild_FailsWhenAnySegmentFails(t *testing.T) {
	client := &failingClient{Client: embedding.NewHashClient(8), failOn: "bad"}
	_, err := Build(context.Background(), client, segs("ok", "bad", "ok too"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "d_1")
}

func TestSegments_ReturnsCopy(t *testing.T) {
	idx, err := Build(context.Background(), embedding.NewHashClient(8), segs("x", "y"), 1)
	require.NoError(t, err)

	got := idx.Segments()
	got[0].TextContent = "mutated"
	assert.Equal(t, "x", idx.Segments()[0].TextContent)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 1}))
}
