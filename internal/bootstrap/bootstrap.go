package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/mkravets/deep-researcher/internal/config"
	"github.com/mkravets/deep-researcher/internal/core/domain"
	"github.com/mkravets/deep-researcher/internal/core/ports"
	"github.com/mkravets/deep-researcher/internal/core/usecase"
	"github.com/mkravets/deep-researcher/internal/infrastructure/chunking"
	"github.com/mkravets/deep-researcher/internal/infrastructure/embedding/hugot"
	"github.com/mkravets/deep-researcher/internal/infrastructure/extractor"
	"github.com/mkravets/deep-researcher/internal/infrastructure/index/bm25"
	"github.com/mkravets/deep-researcher/internal/infrastructure/llm/ollama"
	"github.com/mkravets/deep-researcher/internal/infrastructure/queue/nats"
	"github.com/mkravets/deep-researcher/internal/infrastructure/repository/postgres"
	"github.com/mkravets/deep-researcher/internal/infrastructure/rerank/tei"
	"github.com/mkravets/deep-researcher/internal/infrastructure/resilience"
	"github.com/mkravets/deep-researcher/internal/infrastructure/storage/localfs"
	"github.com/mkravets/deep-researcher/internal/infrastructure/vector/qdrant"
	"github.com/mkravets/deep-researcher/internal/observability/metrics"
)

const apiServiceName = "deep-researcher-api"

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Documents ports.DocumentRepository
	Nodes     ports.NodeStore
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	QueryUC   ports.QueryService
	Research  ports.ResearchService
	Metrics   *metrics.HTTPServerMetrics

	embedder     ports.Embedder
	vectorIndex  ports.VectorIndex
	generator    ports.AnswerGenerator
	crossEncoder ports.CrossEncoder
	indexMeta    ports.IndexMetaStore

	closeFns []func()
}

// New wires the shared dependency graph: storage, queue, embedder and the
// ingestion pipeline. Retrieval services are added by NewAPI because they
// require a populated index.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closeFns = append(app.closeFns, func() { _ = db.Close() })

	documents := postgres.NewDocumentRepository(db)
	if err := documents.EnsureSchema(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	nodes := postgres.NewNodeRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closeFns = append(app.closeFns, queue.Close)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithExecutor(executor)

	var embedder ports.Embedder
	var embedModel string
	switch cfg.EmbedderBackend {
	case "local":
		localEmbedder, err := hugot.New(cfg.LocalEmbedModel, cfg.ModelDir)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init local embedder: %w", err)
		}
		app.closeFns = append(app.closeFns, func() { _ = localEmbedder.Close() })
		embedder = localEmbedder
		embedModel = cfg.LocalEmbedModel
	case "ollama", "":
		embedder = ollama.NewEmbedder(ollamaClient)
		embedModel = cfg.OllamaEmbedModel
	default:
		app.Close()
		return nil, domain.WrapError(domain.ErrConfiguration, "startup",
			fmt.Errorf("unknown embedder backend %q", cfg.EmbedderBackend))
	}

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	parser := chunking.NewSentenceWindowParser(cfg.SentenceWindowSize)
	textExtractor := extractor.NewExtractor(storage)

	app.Queue = queue
	app.Documents = documents
	app.Nodes = nodes
	app.IngestUC = usecase.NewIngestDocumentUseCase(documents, storage, queue)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(
		documents, textExtractor, parser, embedder, nodes, vectorIndex, nodes, embedModel,
	)

	app.embedder = embedder
	app.vectorIndex = vectorIndex
	app.generator = ollama.NewGenerator(ollamaClient)
	app.crossEncoder = tei.New(cfg.RerankerURL).WithExecutor(executor)
	app.indexMeta = nodes

	return app, nil
}

// NewAPI builds the query-serving application. It refuses to start against
// an empty or mismatched index: answering over a wrong index is worse than
// not starting.
func NewAPI(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := validateIndexState(ctx, app.Nodes, app.indexMeta, app.vectorIndex, cfg.EmbeddingDim); err != nil {
		app.Close()
		return nil, err
	}

	allNodes, err := app.Nodes.ListNodes(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load nodes for lexical index: %w", err)
	}
	lexical := bm25.Build(allNodes, cfg.BM25K1, cfg.BM25B)

	serverMetrics := metrics.NewHTTPServerMetrics(apiServiceName)
	observer := serverMetrics.RetrievalObserver(apiServiceName)

	retriever := usecase.NewHybridRetriever(app.embedder, app.vectorIndex, lexical, cfg.VectorTopK, cfg.BM25TopK)
	reranker := usecase.NewReranker(app.crossEncoder, cfg.RerankTopN)
	queryUC := usecase.NewQueryUseCase(retriever, reranker, app.generator).WithObserver(observer)

	app.Metrics = serverMetrics
	app.QueryUC = queryUC
	app.Research = usecase.NewResearchUseCase(queryUC, app.generator, usecase.ResearchLimits{
		MaxIterations: cfg.AgentMaxIterations,
		StepTimeout:   time.Duration(cfg.AgentStepTimeoutSeconds) * time.Second,
	}).WithObserver(observer)

	return app, nil
}

// validateIndexState refuses a query-serving start against an empty or
// mismatched index. Every check fails with a descriptive error; none of the
// conditions degrade to a warning.
func validateIndexState(
	ctx context.Context,
	nodes ports.NodeStore,
	metaStore ports.IndexMetaStore,
	vectors ports.VectorIndex,
	configuredDim int,
) error {
	count, err := nodes.CountNodes(ctx)
	if err != nil {
		return fmt.Errorf("count nodes: %w", err)
	}
	if count == 0 {
		return domain.WrapError(domain.ErrStorageNotFound, "startup",
			fmt.Errorf("node store is empty; ingest documents before serving queries"))
	}

	meta, err := metaStore.GetIndexMeta(ctx)
	if err != nil {
		return fmt.Errorf("load index meta: %w", err)
	}
	if configuredDim > 0 && meta.Dimension != configuredDim {
		return domain.WrapError(domain.ErrDimensionMismatch, "startup",
			fmt.Errorf("index built with dimension %d, configured %d", meta.Dimension, configuredDim))
	}

	dim, err := vectors.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("vector index dimension: %w", err)
	}
	if dim != meta.Dimension {
		return domain.WrapError(domain.ErrDimensionMismatch, "startup",
			fmt.Errorf("vector index dimension %d, index meta %d", dim, meta.Dimension))
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
}
