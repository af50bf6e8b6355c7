// Package bootstrap wires the infrastructure adapters to the core and hands
// the entrypoints one assembled application.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/core/ports"
	"github.com/ragline/ragline/internal/core/usecase"
	"github.com/ragline/ragline/internal/infrastructure/cache"
	"github.com/ragline/ragline/internal/infrastructure/index"
	"github.com/ragline/ragline/internal/infrastructure/llm/ollama"
	"github.com/ragline/ragline/internal/infrastructure/llm/openai"
	"github.com/ragline/ragline/internal/infrastructure/queue/nats"
	"github.com/ragline/ragline/internal/infrastructure/repository/postgres"
	"github.com/ragline/ragline/internal/infrastructure/resilience"
	"github.com/ragline/ragline/internal/infrastructure/scorer"
	"github.com/ragline/ragline/internal/infrastructure/vector/qdrant"
	"github.com/ragline/ragline/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Answer ports.AnswerService
	Sink   *nats.Sink

	DefaultBudget domain.ContextBudget
	DefaultRoute  domain.ProviderRoute

	Metrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)
	conversations := postgres.NewConversationRepository(db)
	if err := conversations.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	var lexical index.LexicalSearcher = chunks
	if cfg.LexicalBackend == "qdrant" {
		lexical = index.NewSparseLexical(vectorDB)
	}
	store, err := index.NewStore(vectorDB, lexical, chunks)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build chunk store: %w", err)
	}

	var embedCache ports.EmbeddingCache
	var redisCache *cache.RedisCache
	if cfg.RedisAddr != "" {
		redisCache = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.EmbedCacheTTL,
		})
		if err := redisCache.Ping(ctx); err != nil {
			_ = redisCache.Close()
			_ = db.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		embedCache = redisCache
	} else {
		embedCache = cache.NewMemoryCache()
	}

	sink, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		if redisCache != nil {
			_ = redisCache.Close()
		}
		_ = db.Close()
		return nil, fmt.Errorf("connect metering sink: %w", err)
	}

	ollamaClient := ollama.New(ollama.Config{
		Name:    "ollama",
		BaseURL: cfg.OllamaURL,
	}, executor)

	providers := []ports.GenerationProvider{ollama.NewGenerator(ollamaClient)}
	var embedder ports.EmbeddingProvider = ollama.NewEmbedder(ollamaClient)
	if cfg.OpenAIAPIKey != "" {
		openaiClient := openai.New(openai.Config{
			Name:    "openai",
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
		}, executor)
		providers = append(providers, openai.NewGenerator(openaiClient))
		if cfg.EmbedProvider == "openai" {
			embedder = openai.NewEmbedder(openaiClient)
		}
	}

	// A missing scorer URL leaves the reranker on the fused order.
	var relevance ports.RelevanceScorer
	if cfg.ScorerURL != "" {
		relevance = scorer.New(scorer.Config{
			BaseURL: cfg.ScorerURL,
			Model:   cfg.ScorerModel,
			APIKey:  cfg.ScorerAPIKey,
		}, executor)
	}

	embedClient := usecase.NewEmbeddingClient(embedder, embedCache, usecase.EmbeddingLimits{
		Model:          cfg.EmbedModel,
		MaxInputTokens: cfg.EmbedMaxInputTokens,
	})
	retriever := usecase.NewHybridRetriever(store, usecase.RetrieverLimits{
		TopK: cfg.RetrieveTopK,
	})
	reranker := usecase.NewReranker(relevance, usecase.RerankLimits{
		CandidateMultiple: cfg.RerankCandidateMultiple,
	})
	assembler := usecase.NewContextAssembler("")
	router := usecase.NewGenerationRouter(providers, sink, usecase.RouterLimits{
		CallTimeout: 60 * time.Second,
	})
	binder := usecase.NewCitationBinder(usecase.CitationLimits{
		MinConfidence: cfg.CitationMinConfidence,
	})

	answer := usecase.NewAnswerUseCase(
		embedClient,
		retriever,
		reranker,
		assembler,
		router,
		binder,
		conversations,
		usecase.AnswerLimits{
			RetrieveTopK: cfg.RetrieveTopK,
			RerankLimit:  cfg.RerankLimit,
			HistoryTurns: cfg.HistoryTurns,
		},
	)

	route, err := cfg.LoadRoute()
	if err != nil {
		sink.Close()
		if redisCache != nil {
			_ = redisCache.Close()
		}
		_ = db.Close()
		return nil, fmt.Errorf("load provider route: %w", err)
	}

	return &App{
		Config: cfg,

		Answer: answer,
		Sink:   sink,

		DefaultBudget: cfg.DefaultBudget(),
		DefaultRoute:  route,

		Metrics: metrics.NewHTTPServerMetrics("api"),

		closeFn: func() {
			sink.Close()
			if redisCache != nil {
				_ = redisCache.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
