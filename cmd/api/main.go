package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/ai"
	"github.com/relaynet/chatcore/internal/api/handlers"
	"github.com/relaynet/chatcore/internal/auth"
	cacheredis "github.com/relaynet/chatcore/internal/cache/redis"
	"github.com/relaynet/chatcore/internal/chat"
	"github.com/relaynet/chatcore/internal/llm"
	"github.com/relaynet/chatcore/internal/metrics"
	"github.com/relaynet/chatcore/internal/middleware/ratelimit"
	"github.com/relaynet/chatcore/internal/middleware/security"
	"github.com/relaynet/chatcore/internal/middleware/validation"
	"github.com/relaynet/chatcore/internal/rag"
	"github.com/relaynet/chatcore/internal/storage/sqlite"
	"github.com/relaynet/chatcore/internal/vector"
	"github.com/relaynet/chatcore/internal/vector/memory"
	"github.com/relaynet/chatcore/internal/vector/milvus"
	"github.com/relaynet/chatcore/pkg/config"
	appLogger "github.com/relaynet/chatcore/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting chat core server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var vectorStore vector.Store
	switch cfg.RAG.Backend {
	case "milvus":
		milvusClient, err := milvus.NewClient(
			cfg.Milvus.Endpoint,
			cfg.Milvus.APIKey,
			cfg.Milvus.CollectionName,
			cfg.LLM.EmbeddingDim,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
		}
		err = milvusClient.EnsureCollection(context.Background())
		if err != nil {
			appLogger.Fatal("Failed to ensure collection", zap.Error(err))
		}
		vectorStore = milvusClient
	default:
		vectorStore = memory.NewStore(cfg.LLM.EmbeddingDim)
	}
	defer vectorStore.Close()

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	var embedCache rag.EmbedCache
	cacheClient, err := cacheredis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Embedding cache unavailable, continuing without it", zap.Error(err))
	} else {
		defer cacheClient.Close()
		embedCache = cacheClient
	}

	registry := chat.NewRegistry(
		time.Duration(cfg.Chat.PresenceTimeoutSec)*time.Second,
		time.Duration(cfg.Chat.SweepIntervalSec)*time.Second,
	)
	registry.Start()
	defer registry.Stop()

	local := chat.NewLocalBroadcaster(registry)
	var broadcaster chat.Broadcaster = local
	if cfg.Chat.Broadcast == "redis" {
		relay, err := chat.NewRedisBroadcaster(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, local)
		if err != nil {
			appLogger.Fatal("Failed to create Redis broadcaster", zap.Error(err))
		}
		broadcaster = relay
	}
	defer broadcaster.Close()
	registry.SetBroadcaster(broadcaster)

	fallback := ai.NewFallback(ai.DefaultRules(), "")
	orchestrator := ai.NewOrchestrator(
		llmClient,
		fallback,
		sqliteClient,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
	)

	chunker := rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	ingestor := rag.NewIngestor(sqliteClient, vectorStore, llmClient, chunker)
	retriever := rag.NewRetriever(vectorStore, llmClient, embedCache, rag.RetrieverConfig{
		TopK:            cfg.RAG.TopK,
		MaxContextChars: cfg.RAG.MaxContextChars,
		CacheTTL:        time.Duration(cfg.RAG.EmbedCacheTTLSec) * time.Second,
	})

	pipeline := chat.NewPipeline(sqliteClient, registry, broadcaster, orchestrator, retriever, auth.AllowAll{}, chat.PipelineConfig{
		MaxBodyBytes:      cfg.Chat.MaxBodyBytes,
		CompressThreshold: cfg.Chat.CompressThreshold,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	wsHandler := handlers.NewWebSocketHandler(registry, pipeline)
	queryHandler := handlers.NewQueryHandler(retriever)
	documentHandler := handlers.NewDocumentHandler(ingestor)
	roomHandler := handlers.NewRoomHandler(pipeline, cfg.Chat.HistoryLimit)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:room", websocket.New(wsHandler.HandleConnection))

	api := app.Group("/api/v1")
	api.Post("/query", queryHandler.HandleQuery)
	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/rooms/:room/messages", roomHandler.GetHistory)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
