package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/mkravets/deep-researcher/internal/core/domain"
	"github.com/mkravets/deep-researcher/internal/core/ports"
)

// HybridRetriever fuses dense vector search and BM25 lexical search into a
// single de-duplicated candidate list.
type HybridRetriever struct {
	embedder   ports.Embedder
	vector     ports.VectorIndex
	lexical    ports.LexicalIndex
	vectorTopK int
	bm25TopK   int
}

func NewHybridRetriever(
	embedder ports.Embedder,
	vector ports.VectorIndex,
	lexical ports.LexicalIndex,
	vectorTopK, bm25TopK int,
) *HybridRetriever {
	if vectorTopK <= 0 {
		vectorTopK = 10
	}
	if bm25TopK <= 0 {
		bm25TopK = 10
	}
	return &HybridRetriever{
		embedder:   embedder,
		vector:     vector,
		lexical:    lexical,
		vectorTopK: vectorTopK,
		bm25TopK:   bm25TopK,
	}
}

// Retrieve runs both sub-retrievers and returns the fused candidate list,
// sorted by fused score descending. The list is not truncated; truncation
// happens at the re-ranker. If either sub-retriever fails the whole call
// fails: a partial candidate set is worse than an explicit error.
func (r *HybridRetriever) Retrieve(ctx context.Context, question string) ([]domain.ScoredNode, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "embed query", err)
	}

	var (
		wg             sync.WaitGroup
		vectorResults  []domain.ScoredNode
		lexicalResults []domain.ScoredNode
		vectorErr      error
		lexicalErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorResults, vectorErr = r.vector.Search(ctx, queryVector, r.vectorTopK)
	}()
	go func() {
		defer wg.Done()
		lexicalResults, lexicalErr = r.lexical.Search(ctx, question, r.bm25TopK)
	}()
	wg.Wait()

	if vectorErr != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "vector search", vectorErr)
	}
	if lexicalErr != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "lexical search", lexicalErr)
	}

	return fuseByScoreAveraging(vectorResults, lexicalResults), nil
}

// fuseByScoreAveraging merges two ranked lists into one candidate set keyed
// by node ID. Vector results are inserted first, then lexical results; a node
// seen by both stages gets the arithmetic mean of the two scores.
func fuseByScoreAveraging(vectorResults, lexicalResults []domain.ScoredNode) []domain.ScoredNode {
	fused := make([]domain.ScoredNode, 0, len(vectorResults)+len(lexicalResults))
	position := make(map[string]int, len(vectorResults)+len(lexicalResults))

	insert := func(candidates []domain.ScoredNode) {
		for _, candidate := range candidates {
			id := candidate.Node.ID
			if at, seen := position[id]; seen {
				fused[at].Score = (fused[at].Score + candidate.Score) / 2
				continue
			}
			position[id] = len(fused)
			fused = append(fused, candidate)
		}
	}
	insert(vectorResults)
	insert(lexicalResults)

	// Stable sort keeps insertion order on ties, so repeated calls with the
	// same index state produce identical output.
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}
