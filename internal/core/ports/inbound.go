package ports

import (
	"context"
	"io"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// QueryService is the inbound contract for question answering: hybrid
// retrieval, re-ranking and answer synthesis in one call.
type QueryService interface {
	Answer(ctx context.Context, question string) (*domain.Answer, error)
}

// ResearchService runs the multi-step research loop on top of QueryService.
type ResearchService interface {
	Research(ctx context.Context, question string) (*domain.Answer, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// RetrievalObserver receives pipeline measurements from the usecases.
// Implementations must not block; a nil observer disables observation.
type RetrievalObserver interface {
	ObserveFusedCandidates(count int)
	ObserveResearchRun(status string, iterations int)
}
