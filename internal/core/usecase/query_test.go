package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

type generatorFake struct {
	answer      string
	err         error
	gotSources  []domain.ScoredNode
	gotQuestion string
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, sources []domain.ScoredNode) (string, error) {
	f.gotQuestion = question
	f.gotSources = sources
	if f.err != nil {
		return "", f.err
	}
	if f.answer != "" {
		return f.answer, nil
	}
	if len(sources) == 0 {
		return "No relevant information found in the indexed documents.", nil
	}
	return "answer", nil
}

func (f *generatorFake) GenerateJSONFromPrompt(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

func newQueryUseCase(vector *vectorIndexFake, lexical *lexicalIndexFake, generator *generatorFake) *QueryUseCase {
	retriever := NewHybridRetriever(&embedderFake{vector: []float32{1}}, vector, lexical, 10, 10)
	reranker := NewReranker(&crossEncoderFake{}, 5)
	return NewQueryUseCase(retriever, reranker, generator)
}

func TestQueryAnswerReturnsSources(t *testing.T) {
	vector := &vectorIndexFake{results: []domain.ScoredNode{scored("A", 0.9)}}
	lexical := &lexicalIndexFake{results: []domain.ScoredNode{scored("B", 0.5)}}
	generator := &generatorFake{answer: "cats are mammals"}
	uc := newQueryUseCase(vector, lexical, generator)

	answer, err := uc.Answer(context.Background(), "are cats mammals?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != "cats are mammals" {
		t.Fatalf("unexpected answer text %q", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(answer.Sources))
	}
}

type observerFake struct {
	fusedCounts []int
	runStatuses []string
	runLengths  []int
}

func (f *observerFake) ObserveFusedCandidates(count int) {
	f.fusedCounts = append(f.fusedCounts, count)
}

func (f *observerFake) ObserveResearchRun(status string, iterations int) {
	f.runStatuses = append(f.runStatuses, status)
	f.runLengths = append(f.runLengths, iterations)
}

func TestQueryAnswerReportsFusedCandidateCount(t *testing.T) {
	vector := &vectorIndexFake{results: []domain.ScoredNode{scored("A", 0.9), scored("B", 0.5)}}
	lexical := &lexicalIndexFake{results: []domain.ScoredNode{scored("B", 0.4), scored("C", 0.3)}}
	observer := &observerFake{}
	uc := newQueryUseCase(vector, lexical, &generatorFake{answer: "ok"}).WithObserver(observer)

	if _, err := uc.Answer(context.Background(), "q"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	// A, B (deduplicated), C.
	if len(observer.fusedCounts) != 1 || observer.fusedCounts[0] != 3 {
		t.Fatalf("expected one observation of 3 fused candidates, got %v", observer.fusedCounts)
	}
}

func TestQueryAnswerEmptyQuestion(t *testing.T) {
	uc := newQueryUseCase(&vectorIndexFake{}, &lexicalIndexFake{}, &generatorFake{})
	_, err := uc.Answer(context.Background(), "   ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQueryAnswerNoCandidatesIsWellFormed(t *testing.T) {
	generator := &generatorFake{}
	uc := newQueryUseCase(&vectorIndexFake{}, &lexicalIndexFake{}, generator)

	answer, err := uc.Answer(context.Background(), "anything about quasars?")
	if err != nil {
		t.Fatalf("expected well-formed response for zero candidates, got error %v", err)
	}
	if len(generator.gotSources) != 0 {
		t.Fatalf("expected empty context passed to synthesis, got %d sources", len(generator.gotSources))
	}
	if !strings.Contains(answer.Text, "No relevant information") {
		t.Fatalf("expected no-information answer, got %q", answer.Text)
	}
	if answer.Sources == nil || len(answer.Sources) != 0 {
		t.Fatalf("expected empty non-nil sources, got %#v", answer.Sources)
	}
}

func TestQueryAnswerSurfacesRetrievalFailure(t *testing.T) {
	vector := &vectorIndexFake{err: errors.New("connection refused")}
	lexical := &lexicalIndexFake{results: []domain.ScoredNode{scored("A", 1)}}
	uc := newQueryUseCase(vector, lexical, &generatorFake{})

	_, err := uc.Answer(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestQueryAnswerGeneratorError(t *testing.T) {
	vector := &vectorIndexFake{results: []domain.ScoredNode{scored("A", 1)}}
	uc := newQueryUseCase(vector, &lexicalIndexFake{}, &generatorFake{err: errors.New("quota exceeded")})

	_, err := uc.Answer(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected generator error to surface")
	}
}
