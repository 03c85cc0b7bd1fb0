package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"pdfchat-go/internal/config"
	"pdfchat-go/internal/model"
	"pdfchat-go/internal/pipeline"
	"pdfchat-go/internal/registry"
	"pdfchat-go/internal/repository"
	"pdfchat-go/pkg/embedding"
	"pdfchat-go/pkg/llm"
	"pdfchat-go/pkg/metrics"
)

const pdfHeader = "%PDF-1.4\n"

type pageDecoder struct{}

func (pageDecoder) Pages(_ context.Context, data []byte, _ string) ([]string, error) {
	body := strings.TrimPrefix(string(data), pdfHeader)
	if strings.HasPrefix(body, "CORRUPT") {
		return nil, fmt.Errorf("xref table not found: %w", pipeline.ErrUndecodable)
	}
	return strings.Split(body, "\f"), nil
}

func pdfDoc(pages ...string) []byte {
	return []byte(pdfHeader + strings.Join(pages, "\f"))
}

var dbCounter atomic.Int64

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dsn := fmt.Sprintf("file:service%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Segment{}))

	processor := pipeline.NewProcessor(pageDecoder{}, config.ChunkingConfig{ChunkSize: 200, ChunkOverlap: 20})
	reg, err := registry.New(context.Background(), processor, embedding.NewHashClient(256),
		repository.NewSegmentRepository(db), metrics.New(), 2)
	require.NoError(t, err)
	return reg
}

// echoGenerator 模拟一个遵守引用要求的模型：找到包含关键词的参考行，并注明来源文档。
type echoGenerator struct {
	keyword  string
	calls    int32
	messages []llm.Message
	err      error
}

func (g *echoGenerator) Provider() llm.Provider { return llm.ProviderOpenAI }
func (g *echoGenerator) Model() string          { return "echo" }

func (g *echoGenerator) Generate(_ context.Context, messages []llm.Message) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	g.messages = messages
	if g.err != nil {
		return "", g.err
	}
	for _, line := range strings.Split(messages[0].Content, "\n") {
		if !strings.Contains(line, g.keyword) {
			continue
		}
		open, end := strings.Index(line, "("), strings.Index(line, ", page")
		if open >= 0 && end > open {
			return fmt.Sprintf("%s (source: %s)", strings.TrimSpace(line[strings.Index(line, ")")+1:]), line[open+1:end]), nil
		}
	}
	return "The provided documents do not contain this information.", nil
}

func fixedFactory(gen llm.Generator) GeneratorFactory {
	return func(llm.Settings) (llm.Generator, error) { return gen, nil }
}

var testLLMConfig = config.LLMConfig{
	Timeout: 0,
	Prompt:  config.LLMPromptConfig{RefStart: "<<REF>>", RefEnd: "<<END>>"},
}
