package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/controller"
	"eco-agent-backend/dao"
	"eco-agent-backend/router"
	"eco-agent-backend/service/chat"
	"eco-agent-backend/service/llm"
	"eco-agent-backend/service/mq"
	"eco-agent-backend/service/rag"
	"eco-agent-backend/service/storage"
	"eco-agent-backend/service/summarization"
	"eco-agent-backend/service/tools"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/llms"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Cfg
	setupLogger(cfg.Server.LogLevel)
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dao.Init(cfg.Database); err != nil {
		slog.Error("Failed to init database", "driver", cfg.Database.Driver, "err", err)
		os.Exit(1)
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	ragService, err := rag.NewServiceFromConfig(ctx, cfg, rdb)
	if err != nil {
		slog.Error("Failed to init rag service", "backend", cfg.RAG.Backend, "err", err)
		os.Exit(1)
	}

	presigner, err := storage.NewPresigner(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init presigner", "provider", cfg.Storage.Provider, "err", err)
		os.Exit(1)
	}

	summaryModel, err := llm.NewSummaryModel(cfg.Model)
	if err != nil {
		slog.Error("Failed to init summary model", "err", err)
		os.Exit(1)
	}

	mcpTools := tools.ConnectMCP(ctx, cfg.MCP.Servers)
	defer mcpTools.Close()

	deps := tools.Deps{
		Searcher:  ragService,
		OpenAI:    llm.NewOpenAIClient(cfg.Model),
		Generator: summaryModel,
		Extra:     mcpTools.Tools(),
	}
	if cfg.Sandbox.APIKey != "" {
		deps.Runner = tools.NewDaytonaClient(cfg.Sandbox)
	}
	registry := tools.NewDefaultRegistry(cfg, deps)
	slog.Info("Tools registered", "tools", registry.Names())

	summarizer := summarization.NewSummarizer(summaryModel)
	summarizer.Run(ctx)
	defer summarizer.Shutdown()

	broker, err := mq.NewBroker(cfg.MQ)
	if err != nil {
		slog.Error("Failed to init broker", "driver", cfg.MQ.Driver, "err", err)
		os.Exit(1)
	}
	if err := broker.Start(); err != nil {
		slog.Error("Failed to start broker", "driver", cfg.MQ.Driver, "err", err)
		os.Exit(1)
	}
	defer broker.Shutdown()

	chatService := chat.NewService(chat.Options{
		Config:       cfg.Chat,
		DefaultModel: cfg.Model.ChatModel,
		MaxSearches:  cfg.RAG.MaxCallsPerSession,
		NewModel: func(modelName string) (llms.Model, error) {
			return llm.NewChatModel(cfg.Model, modelName)
		},
		Registry:  registry,
		Summaries: summarizer,
		Usage:     broker,
	})

	controller.Setup(controller.Deps{
		Chat:              chatService,
		Searcher:          ragService,
		Presigner:         presigner,
		CompressByDefault: cfg.RAG.Compress,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.Register(),
	}

	go func() {
		slog.Info("Server started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server stopped unexpectedly", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shutdown server", "err", err)
	}
}

func setupLogger(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}
