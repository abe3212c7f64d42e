package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askbase/askbase/internal/auth"
	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/embedder"
	"github.com/askbase/askbase/internal/ingestion"
	"github.com/askbase/askbase/internal/lexical"
	"github.com/askbase/askbase/internal/llm"
	"github.com/askbase/askbase/internal/memory"
	"github.com/askbase/askbase/internal/repository"
	"github.com/askbase/askbase/internal/repository/postgres"
	"github.com/askbase/askbase/internal/retrieval"
	"github.com/askbase/askbase/internal/server"
	"github.com/askbase/askbase/internal/service"
	"github.com/askbase/askbase/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting askbase",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Initialize PostgreSQL document registry
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	slog.Info("connected to PostgreSQL")

	documentRepo := postgres.NewDocumentRepo(db)

	// Initialize Qdrant vector store. The vector store is required; fail
	// fast when it is unreachable.
	vectorStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	slog.Info("connected to Qdrant", "collection", cfg.QdrantCollection)

	// Initialize embedder and chat clients
	embed := embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.EmbeddingModel,
	})
	slog.Info("initialized embedder", "model", cfg.EmbeddingModel, "dimension", embed.Dimension())

	if err := vectorStore.EnsureCollection(ctx, embed.Dimension()); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	llmClient := llm.NewOpenAIClient(
		llm.WithBaseURL(cfg.OpenAIBaseURL),
		llm.WithAPIKey(cfg.OpenAIAPIKey),
		llm.WithModel(cfg.ChatModel),
	)
	slog.Info("initialized chat client", "model", cfg.ChatModel)

	// The keyword index is best-effort; the engine falls back to vector
	// search when it is unreachable.
	lexicalClient := lexical.NewClient(
		lexical.WithBaseURL(cfg.SearchServiceURL),
		lexical.WithTimeout(cfg.SearchServiceTimeout),
	)

	// Initialize the retrieval engine
	engine := retrieval.NewEngine(vectorStore, lexicalClient, retrieval.Config{
		LexicalK:        cfg.HybridLexicalK,
		CenterK:         cfg.HybridCenterK,
		RelThreshold:    cfg.HybridRelThreshold,
		Window:          cfg.HybridWindow,
		MaxChunks:       cfg.HybridMaxChunks,
		FusionAlpha:     cfg.HybridFusionAlpha,
		DistancePenalty: cfg.HybridDistPenalty,
	})

	// Initialize the ingestion pipeline
	pipeline, err := ingestion.NewPipeline(embed, vectorStore,
		ingestion.WithChunkerConfig(ingestion.ChunkerConfig{
			TargetWords:  cfg.ChunkTargetWords,
			OverlapWords: cfg.ChunkOverlapWords,
		}),
		ingestion.WithIndexer(lexicalClient),
		ingestion.WithPoolSize(cfg.IngestConcurrency),
	)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	// Initialize services
	sessions := memory.DefaultStore()
	defer sessions.Close()

	querySvc := service.NewQueryService(engine, embed, llmClient, cfg.ChatModel,
		service.WithMemory(sessions),
		service.WithContextBudget(cfg.ContextMaxChars),
	)
	documentSvc := service.NewDocumentService(documentRepo, pipeline, slog.Default())

	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.JWTExpiry,
	})

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:       cfg.HTTPPort,
		APIKey:     cfg.APIKey,
		JWTManager: jwtManager,
		Logger:     slog.Default(),
		ReadyCheck: func(ctx context.Context) error {
			return db.Pool.Ping(ctx)
		},
	}, querySvc, documentSvc)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.DocumentRepository = (*postgres.DocumentRepo)(nil)
	_ vectorstore.Store             = (*vectorstore.QdrantStore)(nil)
	_ retrieval.ChunkStore          = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder             = (*embedder.OpenAIEmbedder)(nil)
	_ llm.LLM                       = (*llm.OpenAIClient)(nil)
	_ lexical.Searcher              = (*lexical.Client)(nil)
	_ lexical.Indexer               = (*lexical.Client)(nil)
)
