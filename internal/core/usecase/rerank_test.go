package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

type crossEncoderFake struct {
	scores []float64
	err    error
	query  string
}

func (f *crossEncoderFake) Score(_ context.Context, query string, passages []string) ([]float64, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	if f.scores != nil {
		return f.scores, nil
	}
	out := make([]float64, len(passages))
	return out, nil
}

func TestRerankReplacesFusionScores(t *testing.T) {
	encoder := &crossEncoderFake{scores: []float64{0.1, 0.9}}
	r := NewReranker(encoder, 2)

	candidates := []domain.ScoredNode{scored("A", 10.0), scored("B", 0.01)}
	out, err := r.Rerank(context.Background(), "question", candidates)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if out[0].Node.ID != "B" || out[0].Score != 0.9 {
		t.Fatalf("expected B(0.9) first, got %s(%v)", out[0].Node.ID, out[0].Score)
	}
	if out[1].Node.ID != "A" || out[1].Score != 0.1 {
		t.Fatalf("expected A(0.1) second, got %s(%v)", out[1].Node.ID, out[1].Score)
	}
	if encoder.query != "question" {
		t.Fatalf("expected query passed to encoder, got %q", encoder.query)
	}
}

func TestRerankBoundNeverPads(t *testing.T) {
	encoder := &crossEncoderFake{scores: []float64{0.3, 0.2, 0.1}}
	r := NewReranker(encoder, 5)

	candidates := []domain.ScoredNode{scored("A", 1), scored("B", 1), scored("C", 1)}
	out, err := r.Rerank(context.Background(), "q", candidates)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected all 3 candidates when topN exceeds input, got %d", len(out))
	}
}

func TestRerankTruncatesToTopN(t *testing.T) {
	encoder := &crossEncoderFake{scores: []float64{0.3, 0.2, 0.1}}
	r := NewReranker(encoder, 2)

	out, err := r.Rerank(context.Background(), "q", []domain.ScoredNode{scored("A", 1), scored("B", 1), scored("C", 1)})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewReranker(&crossEncoderFake{}, 5)
	out, err := r.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
}

func TestRerankPreservesNodeContent(t *testing.T) {
	encoder := &crossEncoderFake{scores: []float64{0.5}}
	r := NewReranker(encoder, 1)

	node := domain.Node{
		ID:       "A",
		Text:     "cats are mammals",
		Window:   "context window",
		Metadata: map[string]string{"page": "3"},
	}
	out, err := r.Rerank(context.Background(), "q", []domain.ScoredNode{{Node: node, Score: 42}})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if out[0].Node.Text != node.Text || out[0].Node.Window != node.Window {
		t.Fatalf("node content changed during rerank: %+v", out[0].Node)
	}
	if out[0].Node.Metadata["page"] != "3" {
		t.Fatalf("node metadata changed during rerank: %+v", out[0].Node.Metadata)
	}
	if out[0].Score != 0.5 {
		t.Fatalf("expected cross-encoder score 0.5, got %v", out[0].Score)
	}
}

func TestRerankTieBreaksByNodeID(t *testing.T) {
	encoder := &crossEncoderFake{scores: []float64{0.5, 0.5}}
	r := NewReranker(encoder, 2)

	out, err := r.Rerank(context.Background(), "q", []domain.ScoredNode{scored("B", 1), scored("A", 1)})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if out[0].Node.ID != "A" {
		t.Fatalf("expected tie broken by node id, got %s first", out[0].Node.ID)
	}
}

func TestRerankEncoderError(t *testing.T) {
	r := NewReranker(&crossEncoderFake{err: errors.New("model down")}, 2)
	_, err := r.Rerank(context.Background(), "q", []domain.ScoredNode{scored("A", 1)})
	if err == nil {
		t.Fatalf("expected error from encoder")
	}
}
