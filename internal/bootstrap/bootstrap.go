package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fiscaldesk/fiscaldesk/internal/config"
	"github.com/fiscaldesk/fiscaldesk/internal/core/domain"
	"github.com/fiscaldesk/fiscaldesk/internal/core/ports"
	"github.com/fiscaldesk/fiscaldesk/internal/core/usecase"
	"github.com/fiscaldesk/fiscaldesk/internal/infrastructure/llm/ollama"
	"github.com/fiscaldesk/fiscaldesk/internal/infrastructure/queue/nats"
	"github.com/fiscaldesk/fiscaldesk/internal/infrastructure/repository/postgres"
	"github.com/fiscaldesk/fiscaldesk/internal/infrastructure/resilience"
	"github.com/fiscaldesk/fiscaldesk/internal/infrastructure/vector/qdrant"
	"github.com/fiscaldesk/fiscaldesk/internal/observability/logging"
	"github.com/fiscaldesk/fiscaldesk/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Metrics   *metrics.HTTPServerMetrics
	Queue     *nats.Queue
	AuditRepo *postgres.AuditRepository
	QueryUC   ports.QueryService

	closeFn func()
}

// goldenStore joins the two halves of the golden set: exact signature
// lookups live in Postgres, similarity lookups in Qdrant.
type goldenStore struct {
	*postgres.GoldenRepository
	*qdrant.GoldenClient
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	corpusRepo := postgres.NewCorpusRepository(db)
	goldenRepo := postgres.NewGoldenRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	if err := corpusRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure corpus schema: %w", err)
	}
	if err := goldenRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure golden schema: %w", err)
	}
	if err := auditRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:        cfg.OllamaURL,
		CheapModel:     cfg.OllamaCheapModel,
		PremiumModel:   cfg.OllamaPremiumModel,
		EmbedModel:     cfg.OllamaEmbedModel,
		RequestTimeout: time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		RateLimitRPS:   cfg.LLMRateLimitRPS,
		RateBurst:      cfg.LLMRateBurst,
	}, executor)

	corpusVector := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
	goldenANN := qdrant.NewGoldenClient(cfg.QdrantURL, cfg.QdrantGoldenCollection, executor)

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	observer := metrics.NewPipelineObserver(httpMetrics, service)

	expander := usecase.NewQueryExpander(ollamaClient, cfg.ExpansionMaxVariants, ms(cfg.ExpansionTimeoutMS), logger)
	goldenLookup := usecase.NewGoldenLookup(
		goldenStore{goldenRepo, goldenANN},
		ollamaClient,
		cfg.GoldenMinSimilarity,
		cfg.GoldenMinTrust,
		ms(cfg.GoldenTimeoutMS),
		logger,
	)
	retriever := usecase.NewHybridRetriever(corpusRepo, corpusVector, ollamaClient, usecase.RetrieverConfig{
		TopN:               cfg.RetrievalTopN,
		CandidatesPerQuery: cfg.RetrievalCandidates,
		SubQueryTimeout:    ms(cfg.SubQueryTimeoutMS),
		RRFSmoothingK:      cfg.FusionRRFK,
		Observer:           observer,
	}, logger)
	synthesizer := usecase.NewSynthesizer(ollamaClient, cfg.SynthesisMaxContextDocs)
	refiner := usecase.NewRefinementLoop(synthesizer, usecase.RefinerConfig{
		MaxAttempts:  cfg.RefineMaxAttempts,
		BaseBackoff:  ms(cfg.RefineBaseBackoffMS),
		MaxBackoff:   ms(cfg.RefineMaxBackoffMS),
		MinAggregate: cfg.RefineMinAggregate,
		MinDimension: cfg.RefineMinDimension,
	}, logger)

	pipeline := usecase.NewQueryPipeline(expander, goldenLookup, retriever, synthesizer, refiner, queue, usecase.PipelineConfig{
		RequestBudget: ms(cfg.RequestBudgetMS),
		Filter:        domain.SearchFilter{Category: cfg.RetrievalCategory},
		Observer:      observer,
	}, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   httpMetrics,
		Queue:     queue,
		AuditRepo: auditRepo,
		QueryUC:   pipeline,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
