package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkravets/deep-researcher/internal/core/domain"
	"github.com/mkravets/deep-researcher/internal/core/ports"
)

// ProcessDocumentUseCase is the offline ingestion pipeline: extract text,
// split into sentence-window nodes, embed, and persist nodes plus vectors.
// It must not run concurrently with query serving against the same storage.
type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.TextExtractor
	parser     ports.NodeParser
	embedder   ports.Embedder
	nodes      ports.NodeStore
	vectors    ports.VectorIndex
	indexMeta  ports.IndexMetaStore
	embedModel string
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	parser ports.NodeParser,
	embedder ports.Embedder,
	nodes ports.NodeStore,
	vectors ports.VectorIndex,
	indexMeta ports.IndexMetaStore,
	embedModel string,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		extractor:  extractor,
		parser:     parser,
		embedder:   embedder,
		nodes:      nodes,
		vectors:    vectors,
		indexMeta:  indexMeta,
		embedModel: embedModel,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processPipeline(ctx, documentID); err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}

	nodes := uc.parser.Parse(doc, text)
	if len(nodes) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "parse nodes", errors.New("parser produced zero nodes"))
	}

	texts := make([]string, len(nodes))
	for i, node := range nodes {
		texts[i] = node.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed nodes: %w", err)
	}
	if len(vectors) != len(nodes) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed nodes",
			fmt.Errorf("vectors/nodes mismatch: %d/%d", len(vectors), len(nodes)),
		)
	}

	if err := uc.nodes.ReplaceNodes(ctx, doc.ID, nodes); err != nil {
		return fmt.Errorf("persist nodes: %w", err)
	}
	if err := uc.vectors.IndexNodes(ctx, nodes, vectors); err != nil {
		return fmt.Errorf("index node vectors: %w", err)
	}

	meta := domain.IndexMeta{
		EmbedModel: uc.embedModel,
		Dimension:  len(vectors[0]),
		Distance:   "cosine",
	}
	if err := uc.indexMeta.SaveIndexMeta(ctx, meta); err != nil {
		return fmt.Errorf("save index metadata: %w", err)
	}
	return nil
}
