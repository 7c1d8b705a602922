// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/internal/handler"
	"lms-assistant-go/internal/middleware"
	"lms-assistant-go/internal/model"
	"lms-assistant-go/internal/pipeline"
	"lms-assistant-go/internal/repository"
	"lms-assistant-go/internal/service"
	"lms-assistant-go/pkg/database"
	"lms-assistant-go/pkg/embedding"
	"lms-assistant-go/pkg/kafka"
	"lms-assistant-go/pkg/llm"
	"lms-assistant-go/pkg/log"
	"lms-assistant-go/pkg/nlp"
	"lms-assistant-go/pkg/storage"
	"lms-assistant-go/pkg/telemetry"
	"lms-assistant-go/pkg/textsplit"
	"lms-assistant-go/pkg/token"
	"lms-assistant-go/pkg/vectorstore"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器与链路追踪
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(rootCtx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("链路追踪初始化失败: %v", err)
	}

	// 3. 初始化数据库、Redis 与对象存储
	db, err := database.OpenMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatalf("MySQL 初始化失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Material{}); err != nil {
		log.Fatalf("数据表迁移失败: %v", err)
	}
	rdb, err := database.OpenRedis(rootCtx, cfg.Database.Redis)
	if err != nil {
		log.Fatalf("Redis 初始化失败: %v", err)
	}
	minioStore, err := storage.NewMinIO(rootCtx, cfg.MinIO)
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	artifacts, err := storage.NewArtifactStore(cfg.Artifacts, minioStore)
	if err != nil {
		log.Fatalf("图谱产物存储初始化失败: %v", err)
	}

	// 4. 初始化向量库与模型客户端
	vectors, err := vectorstore.Open(cfg)
	if err != nil {
		log.Fatalf("向量库初始化失败: %v", err)
	}
	embeddingClient, err := embedding.NewClient(rootCtx, cfg.Embedding)
	if err != nil {
		log.Fatalf("Embedding 客户端初始化失败: %v", err)
	}
	llmClient, err := llm.NewClient(rootCtx, cfg.LLM)
	if err != nil {
		log.Fatalf("LLM 客户端初始化失败: %v", err)
	}
	entities := nlp.NewExtractor()
	pageExtractor, err := pipeline.NewPageExtractor(cfg)
	if err != nil {
		log.Fatalf("文档解析器初始化失败: %v", err)
	}
	anyFormat := cfg.Ingest.Extractor == "tika"

	// 5. 初始化 Repository 与 Service (依赖注入)
	materialRepo := repository.NewMaterialRepository(db)
	attemptRepo := repository.NewAttemptRepository(rdb)
	rateLimitRepo := repository.NewRateLimitRepository(rdb)

	producer := kafka.NewProducer(cfg.Kafka)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	retrievalService := service.NewRetrievalService(entities, embeddingClient, vectors, cfg.Retrieval)
	answerService := service.NewAnswerService(llmClient)
	assistantService := service.NewAssistantService(retrievalService, answerService)
	materialService := service.NewMaterialService(materialRepo, minioStore, minioStore, producer, anyFormat, cfg.Ingest.MaxFileBytes)

	// 6. 初始化入库管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(pipeline.Options{
		Objects:   minioStore,
		Extractor: pageExtractor,
		Splitter: textsplit.New(
			textsplit.WithChunkSize(cfg.Ingest.ChunkSize),
			textsplit.WithOverlap(cfg.Ingest.ChunkOverlap),
		),
		Entities:     entities,
		Artifacts:    artifacts,
		Indexer:      pipeline.NewIndexer(embeddingClient, vectors),
		Status:       materialRepo,
		AnyFormat:    anyFormat,
		MaxFileBytes: cfg.Ingest.MaxFileBytes,
	})
	consumer := kafka.NewConsumer(cfg.Kafka, processor, attemptRepo)
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		consumer.Run(rootCtx)
	}()

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Tracing(cfg.Telemetry.ServiceName),
		middleware.RequestLogger(),
	)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})

	assistantHandler := handler.NewAssistantHandler(assistantService)
	materialHandler := handler.NewMaterialHandler(materialService)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager), middleware.EnrichTrace())
	{
		assistant := apiV1.Group("/assistant")
		assistant.Use(middleware.RateLimit(rateLimitRepo, "assistant", cfg.RateLimit.QueriesPerMinute))
		{
			assistant.POST("/query", assistantHandler.Query)
			assistant.POST("/retrieve", assistantHandler.Retrieve)
		}

		apiV1.GET("/courses/:courseId/materials", materialHandler.List)
		apiV1.GET("/materials/:id", materialHandler.Get)

		// 上传与重建索引仅限教师和管理员
		staff := apiV1.Group("/")
		staff.Use(middleware.RequireRoles(token.RoleAdmin, "instructor"))
		{
			staff.POST("/courses/:courseId/materials", materialHandler.Upload)
			staff.POST("/materials/:id/reindex", materialHandler.Reindex)
		}
	}

	// 8. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 取消后消费者不再提交未完成的消息，重启后会重新投递
	stop()
	workers.Wait()
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownTracer(ctx); err != nil {
		log.Errorf("关闭链路追踪失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
