package bm25

import (
	"context"
	"reflect"
	"testing"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

func corpus() []domain.Node {
	return []domain.Node{
		{ID: "A", Text: "cats are mammals"},
		{ID: "B", Text: "dogs are mammals"},
		{ID: "C", Text: "rocks are minerals"},
	}
}

func TestSearchRanksMatchingNodesFirst(t *testing.T) {
	idx := Build(corpus(), DefaultK1, DefaultB)

	results, err := idx.Search(context.Background(), "mammals", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches for 'mammals', got %d", len(results))
	}
	got := map[string]bool{}
	for _, r := range results {
		got[r.Node.ID] = true
		if r.Score <= 0 {
			t.Fatalf("expected positive BM25 score, got %v for %s", r.Score, r.Node.ID)
		}
	}
	if !got["A"] || !got["B"] {
		t.Fatalf("expected A and B above C, got %v", got)
	}
}

func TestSearchNoMatchingTermsReturnsEmpty(t *testing.T) {
	idx := Build(corpus(), DefaultK1, DefaultB)

	results, err := idx.Search(context.Background(), "quasar luminosity", 5)
	if err != nil {
		t.Fatalf("expected no error for no-match query, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result, got %d", len(results))
	}
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	nodes := []domain.Node{
		{ID: "B", Text: "solar panels"},
		{ID: "A", Text: "solar panels"},
	}
	idx := Build(nodes, DefaultK1, DefaultB)

	first, err := idx.Search(context.Background(), "solar", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if first[0].Node.ID != "A" {
		t.Fatalf("expected tie broken by node id, got %s first", first[0].Node.ID)
	}
	for i := 0; i < 20; i++ {
		again, err := idx.Search(context.Background(), "solar", 10)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("ordering flipped between identical queries")
		}
	}
}

func TestSearchRespectsK(t *testing.T) {
	idx := Build(corpus(), DefaultK1, DefaultB)

	results, err := idx.Search(context.Background(), "are", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result with k=1, got %d", len(results))
	}
}

func TestSearchIncludesWindowTerms(t *testing.T) {
	nodes := []domain.Node{
		{ID: "A", Text: "it weighs two kilograms.", Window: "the instrument measures flux. it weighs two kilograms. calibration is annual."},
	}
	idx := Build(nodes, DefaultK1, DefaultB)

	results, err := idx.Search(context.Background(), "calibration", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected window terms to be indexed, got %d results", len(results))
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := Build(nil, DefaultK1, DefaultB)
	results, err := idx.Search(context.Background(), "anything", 5)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty result from empty index, got %v, %v", results, err)
	}
}
