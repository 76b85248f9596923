package ports

import (
	"context"
	"io"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// NodeStore owns the retrievable nodes. Indexes hold derived structures
// keyed by node ID but never node content.
type NodeStore interface {
	ReplaceNodes(ctx context.Context, documentID string, nodes []domain.Node) error
	GetNode(ctx context.Context, id string) (*domain.Node, error)
	ListNodes(ctx context.Context) ([]domain.Node, error)
	CountNodes(ctx context.Context) (int, error)
}

// IndexMetaStore records the embedding configuration the index was built with.
type IndexMetaStore interface {
	SaveIndexMeta(ctx context.Context, meta domain.IndexMeta) error
	GetIndexMeta(ctx context.Context) (*domain.IndexMeta, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// NodeParser splits extracted text into retrievable nodes.
type NodeParser interface {
	Parse(doc *domain.Document, text string) []domain.Node
}

// Embedder builds vectors for node texts and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs nearest-neighbour search over node embeddings.
type VectorIndex interface {
	IndexNodes(ctx context.Context, nodes []domain.Node, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, k int) ([]domain.ScoredNode, error)
	Dimension(ctx context.Context) (int, error)
}

// LexicalIndex performs sparse term-frequency search over the node set.
type LexicalIndex interface {
	Search(ctx context.Context, queryText string, k int) ([]domain.ScoredNode, error)
}

// CrossEncoder scores each (query, passage) pair jointly. One score per
// passage, same order as the input.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, sources []domain.ScoredNode) (string, error)
	GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error)
}
