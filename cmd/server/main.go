// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"pdfchat-go/internal/config"
	"pdfchat-go/internal/handler"
	"pdfchat-go/internal/pipeline"
	"pdfchat-go/internal/registry"
	"pdfchat-go/internal/repository"
	"pdfchat-go/internal/service"
	"pdfchat-go/pkg/database"
	"pdfchat-go/pkg/embedding"
	"pdfchat-go/pkg/kafka"
	"pdfchat-go/pkg/llm"
	"pdfchat-go/pkg/log"
	"pdfchat-go/pkg/metrics"
	"pdfchat-go/pkg/pdftext"
	"pdfchat-go/pkg/storage"
	"pdfchat-go/pkg/tika"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "pdfchat-server",
		Short:         "多 PDF 检索增强问答服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// .env 可选，不存在时忽略
	_ = godotenv.Load()

	// 1. 初始化配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	m := metrics.New()

	// 3. 初始化分块存储与可选的 Redis
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		if rdb, err = database.NewRedis(ctx, cfg.Redis); err != nil {
			return err
		}
		defer rdb.Close()
	}

	// 4. 解析、向量化与注册表
	var decoder pipeline.Decoder
	if cfg.Decoder.Provider == "local" {
		decoder = pdftext.NewDecoder()
	} else {
		decoder = tika.NewClient(cfg.Tika)
	}
	processor := pipeline.NewProcessor(decoder, cfg.Chunking)

	embedder, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		return err
	}
	if cfg.Cache.Enabled {
		var cache embedding.Cache = embedding.NewMemoryCache()
		if rdb != nil {
			cache = embedding.NewRedisCache(rdb, cfg.Cache.TTL)
		}
		embedder = embedding.WithCache(embedder, cache, m)
	}

	reg, err := registry.New(ctx, processor, embedder, repository.NewSegmentRepository(db), m, cfg.Embedding.Workers)
	if err != nil {
		return err
	}

	// 5. 可选的归档与事件
	var archive service.DocumentArchive
	if cfg.MinIO.Enabled {
		a, err := storage.NewArchive(ctx, cfg.MinIO)
		if err != nil {
			return err
		}
		archive = a
	}
	publisher := kafka.NewPublisher(cfg.Kafka)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warnf("关闭 Kafka 生产者失败: %v", err)
		}
	}()

	var conversationRepo repository.ConversationRepository
	if rdb != nil {
		conversationRepo = repository.NewConversationRepository(rdb)
	}

	// 6. 初始化 Service
	documentService := service.NewDocumentService(reg, archive, publisher)
	chatService := service.NewChatService(reg, func(s llm.Settings) (llm.Generator, error) {
		return llm.New(s, cfg.LLM)
	}, conversationRepo, m, cfg.Retrieval, cfg.LLM)

	// 7. 导入种子目录
	seedCtx, cancelSeed := context.WithCancel(ctx)
	defer cancelSeed()
	if cfg.Seed.Dir != "" {
		go seedDocuments(seedCtx, cfg.Seed.Dir, cfg.Seed.Pattern, documentService)
	}

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.RouterDeps{
		Documents: handler.NewDocumentHandler(documentService, cfg.Server.MaxUploadMB),
		Chat:      handler.NewChatHandler(chatService),
		Sessions:  handler.NewSessionHandler(chatService),
		Stats:     reg,
		Metrics:   m,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("接收到停机信号，正在关闭服务...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
	}
	cancelSeed()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	if err := reg.Close(shutdownCtx); err != nil {
		log.Warnf("清理分块存储失败: %v", err)
	}

	log.Info("服务已优雅关闭")
	return nil
}
