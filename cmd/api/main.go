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

	"github.com/support-agent/backend/internal/agent"
	"github.com/support-agent/backend/internal/api/handlers"
	"github.com/support-agent/backend/internal/cache"
	"github.com/support-agent/backend/internal/ingestion"
	"github.com/support-agent/backend/internal/ledger"
	"github.com/support-agent/backend/internal/llm"
	"github.com/support-agent/backend/internal/metrics"
	"github.com/support-agent/backend/internal/middleware/ratelimit"
	"github.com/support-agent/backend/internal/middleware/security"
	"github.com/support-agent/backend/internal/pipeline"
	"github.com/support-agent/backend/internal/retrieval"
	"github.com/support-agent/backend/internal/storage/sqlite"
	"github.com/support-agent/backend/pkg/config"
	appLogger "github.com/support-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	metrics.Init()

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open SQLite database", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		appLogger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	var knowledgeBase retrieval.Retriever
	milvusRetriever, err := retrieval.NewMilvusRetriever(ctx, cfg.Milvus, llmClient)
	cancel()
	if err != nil {
		appLogger.Warn("Milvus unavailable, knowledge-base retrieval disabled", zap.Error(err))
	} else {
		knowledgeBase = milvusRetriever
		defer milvusRetriever.Close()
	}

	webRetriever := retrieval.NewWebRetriever(cfg.Search)

	var fastPath cache.FastPath
	if cfg.Redis.Enabled {
		redisFast, err := cache.NewRedisFastPath(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLMin)*time.Minute,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without fast path", zap.Error(err))
		} else {
			fastPath = redisFast
			defer redisFast.Close()
		}
	}

	responseCache := cache.New(store, cache.Options{
		TTL:           time.Duration(cfg.Cache.TTLHours) * time.Hour,
		SweepInterval: time.Duration(cfg.Cache.SweepIntervalMin) * time.Minute,
		MaxEntries:    cfg.Cache.MaxEntries,
		FastPath:      fastPath,
	})
	responseCache.StartSweeper()
	defer responseCache.Close()

	runLedger := ledger.New(store)

	orchestrator := pipeline.NewOrchestrator(
		agent.NewRouter(),
		agent.NewGrader(llmClient),
		agent.NewRewriter(llmClient),
		agent.NewGenerator(llmClient),
		agent.NewLanguageService(llmClient),
		agent.NewSuggester(llmClient),
		knowledgeBase,
		webRetriever,
		responseCache,
		runLedger,
		store,
		pipeline.Config{
			RetrievalK:     cfg.Pipeline.RetrievalK,
			MaxRewrites:    cfg.Pipeline.MaxRewrites,
			RequestTimeout: time.Duration(cfg.Pipeline.RequestTimeoutSec) * time.Second,
		},
	)

	var processor *ingestion.Processor
	if milvusRetriever != nil {
		processor = ingestion.NewProcessor(milvusRetriever, store, llmClient, cfg.Ingestion.ChunkSize)
	}

	app := fiber.New(fiber.Config{
		AppName:      "support-agent",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    12 << 20,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use("/api", limiter.Middleware())

	queryHandler := handlers.NewQueryHandler(orchestrator, runLedger, store)
	wsHandler := handlers.NewWebSocketHandler(orchestrator)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/conversations/:id", queryHandler.HandleGetConversation)
	api.Delete("/conversations/:id", queryHandler.HandleDeleteConversation)
	api.Post("/feedback", queryHandler.HandleFeedback)
	api.Get("/analytics/summary", queryHandler.HandleSummary)
	api.Get("/analytics/sentiment", queryHandler.HandleSentimentTrend)
	api.Get("/analytics/cache", queryHandler.HandleCacheMetrics)

	if processor != nil {
		documentHandler := handlers.NewDocumentHandler(processor, store)
		api.Post("/documents", documentHandler.HandleUpload)
		api.Get("/documents", documentHandler.HandleList)
		api.Delete("/documents/:id", documentHandler.HandleDelete)
		api.Get("/kb/status", documentHandler.HandleStatus)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	go func() {
		appLogger.Info("Server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Shutdown failed", zap.Error(err))
	}
}
