package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkravets/deep-researcher/internal/core/domain"
	"github.com/mkravets/deep-researcher/internal/core/ports"
)

// QueryUseCase orchestrates hybrid retrieval, re-ranking and answer
// synthesis. It is stateless per call; session tracking belongs to callers.
type QueryUseCase struct {
	retriever *HybridRetriever
	reranker  *Reranker
	generator ports.AnswerGenerator
	observer  ports.RetrievalObserver
}

func NewQueryUseCase(
	retriever *HybridRetriever,
	reranker *Reranker,
	generator ports.AnswerGenerator,
) *QueryUseCase {
	return &QueryUseCase{
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
	}
}

func (uc *QueryUseCase) WithObserver(observer ports.RetrievalObserver) *QueryUseCase {
	uc.observer = observer
	return uc
}

func (uc *QueryUseCase) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", fmt.Errorf("empty question"))
	}

	candidates, err := uc.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	if uc.observer != nil {
		uc.observer.ObserveFusedCandidates(len(candidates))
	}

	// Zero candidates is a valid state: synthesis gets an empty context and
	// answers that nothing relevant was found.
	sources, err := uc.reranker.Rerank(ctx, question, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank candidates: %w", err)
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, question, sources)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	if sources == nil {
		sources = []domain.ScoredNode{}
	}
	return &domain.Answer{
		Text:    answerText,
		Sources: sources,
	}, nil
}
