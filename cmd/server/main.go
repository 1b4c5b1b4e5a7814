package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ragdesk/internal/agent"
	"ragdesk/internal/app"
	"ragdesk/internal/config"
	"ragdesk/internal/registry"
	"ragdesk/internal/server"
	"ragdesk/internal/util"
	"ragdesk/pkg/ai"
	"ragdesk/pkg/storage"
	"ragdesk/pkg/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var (
		generator ai.TextGenerator
		embedder  ai.Embedder
	)
	switch cfg.LLMProvider {
	case "ollama":
		client := ai.NewOllamaClient(cfg.OllamaURL)
		generator = ai.NewOllamaGenerator(client, cfg.GenerationModel, cfg.Temperature)
		embedder = ai.NewOllamaEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		generator = ai.NewOpenAICompatGenerator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.GenerationModel, cfg.Temperature)
		embedder = ai.NewOpenAICompatEmbedder(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel)
	}

	var vectorStore store.VectorStore
	switch cfg.StoreBackend {
	case "memory":
		vectorStore = store.NewMemoryStore()
	default:
		gormStore, err := store.NewGormStore(cfg.DatabaseURL, cfg.EmbeddingDimensions)
		if err != nil {
			fatal(logger, "failed to init vector store", err)
		}
		vectorStore = gormStore
	}

	var archive storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			fatal(logger, "failed to init upload archive", err)
		}
		archive = minioStore
	}

	reg := registry.New(cfg.MaxDocuments, cfg.MaxSessions, cfg.MaxMessages)
	orchestrator := agent.NewOrchestrator(generator, vectorStore, embedder, cfg.TopK)

	appCore := app.New(context.Background(), logger, app.Options{
		Store:        vectorStore,
		Embedder:     embedder,
		Generator:    generator,
		Registry:     reg,
		Orchestrator: orchestrator,
		Archive:      archive,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.TopK,
		EmbedWorkers: cfg.EmbedWorkers,
	})

	httpServer, err := server.New(server.Config{
		App:                     appCore,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		QueryRateLimitPerMinute: cfg.QueryRateLimitPerMinute,
	})
	if err != nil {
		fatal(logger, "failed to init http server", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr, "store", cfg.StoreBackend, "provider", cfg.LLMProvider)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
