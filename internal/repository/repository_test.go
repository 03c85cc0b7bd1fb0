package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"pdfchat-go/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Segment{}))
	return db
}

func seg(doc string, seq uint64, pos int) model.Segment {
	return model.Segment{
		SegmentID:    fmt.Sprintf("%s_%d", doc, pos),
		DocumentID:   doc,
		DocumentName: doc + ".pdf",
		Page:         1,
		Position:     pos,
		TextContent:  fmt.Sprintf("%s text %d", doc, pos),
		Seq:          seq,
	}
}

func TestSegmentRepository_ListAllOrdersBySeqThenPosition(t *testing.T) {
	repo := NewSegmentRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.BatchCreate(ctx, []model.Segment{seg("b", 2, 1), seg("b", 2, 0)}))
	require.NoError(t, repo.BatchCreate(ctx, []model.Segment{seg("a", 1, 1), seg("a", 1, 0)}))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	var ids []string
	for _, s := range all {
		ids = append(ids, s.SegmentID)
	}
	assert.Equal(t, []string{"a_0", "a_1", "b_0", "b_1"}, ids)
}

func countDocument(t *testing.T, repo SegmentRepository, documentID string) int {
	t.Helper()
	all, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	n := 0
	for _, s := range all {
		if s.DocumentID == documentID {
			n++
		}
	}
	return n
}

func TestSegmentRepository_Delete(t *testing.T) {
	repo := NewSegmentRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.BatchCreate(ctx, []model.Segment{seg("a", 1, 0), seg("a", 1, 1), seg("b", 2, 0)}))
	assert.Equal(t, 2, countDocument(t, repo, "a"))

	deleted, err := repo.DeleteByDocumentID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = repo.DeleteByDocumentID(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].DocumentID)
}

func TestSegmentRepository_BatchCreateIsAtomic(t *testing.T) {
	repo := NewSegmentRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.BatchCreate(ctx, []model.Segment{seg("a", 1, 0)}))

	// 主键冲突导致整批回滚
	err := repo.BatchCreate(ctx, []model.Segment{seg("c", 2, 0), seg("a", 1, 0)})
	require.Error(t, err)

	assert.Zero(t, countDocument(t, repo, "c"))
}

func TestSegmentRepository_Reset(t *testing.T) {
	repo := NewSegmentRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.BatchCreate(ctx, []model.Segment{seg("a", 1, 0), seg("b", 2, 0)}))
	require.NoError(t, repo.Reset(ctx))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestConversationRepository_AppendKeepsRecent(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	repo := NewConversationRepository(rdb)
	ctx := context.Background()

	history, err := repo.GetConversationHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)

	for i := 0; i < 15; i++ {
		require.NoError(t, repo.AppendConversationHistory(ctx, "s1",
			model.ChatMessage{Role: "user", Content: fmt.Sprintf("q%d", i), Timestamp: time.Now()},
			model.ChatMessage{Role: "assistant", Content: fmt.Sprintf("a%d", i), Timestamp: time.Now()},
		))
	}

	history, err = repo.GetConversationHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, defaultHistoryLimit)
	assert.Equal(t, "q5", history[0].Content)
	assert.Equal(t, "a14", history[len(history)-1].Content)
	assert.True(t, mr.TTL("conversation:s1") > 0)
}

func TestConversationRepository_ConcurrentAppendsKeepEveryTurn(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	repo := NewConversationRepository(rdb)
	ctx := context.Background()

	const writers = 5
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.AppendConversationHistory(ctx, "shared",
				model.ChatMessage{Role: "user", Content: fmt.Sprintf("q%d", i)},
				model.ChatMessage{Role: "assistant", Content: fmt.Sprintf("a%d", i)},
			))
		}(i)
	}
	wg.Wait()

	history, err := repo.GetConversationHistory(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, history, 2*writers)
	// 每次追加的两条消息保持相邻
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, "user", history[i].Role)
		assert.Equal(t, "a"+history[i].Content[1:], history[i+1].Content)
	}
}
