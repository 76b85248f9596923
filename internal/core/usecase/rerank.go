package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/mkravets/deep-researcher/internal/core/domain"
	"github.com/mkravets/deep-researcher/internal/core/ports"
)

// Reranker replaces fusion scores with cross-encoder relevance scores and
// keeps the top N candidates.
type Reranker struct {
	encoder ports.CrossEncoder
	topN    int
}

func NewReranker(encoder ports.CrossEncoder, topN int) *Reranker {
	if topN <= 0 {
		topN = 5
	}
	return &Reranker{encoder: encoder, topN: topN}
}

// Rerank scores every (question, candidate text) pair with the cross-encoder
// and returns the top min(topN, len(candidates)) by that new score. The
// fusion score is discarded; node text and metadata pass through unchanged.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []domain.ScoredNode) ([]domain.ScoredNode, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	passages := make([]string, len(candidates))
	for i, candidate := range candidates {
		passages[i] = candidate.Node.Text
	}

	scores, err := r.encoder.Score(ctx, question, passages)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "cross-encoder scoring",
			fmt.Errorf("scores/candidates mismatch: %d/%d", len(scores), len(candidates)))
	}

	reranked := make([]domain.ScoredNode, len(candidates))
	for i, candidate := range candidates {
		reranked[i] = domain.ScoredNode{Node: candidate.Node, Score: scores[i]}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].Score != reranked[j].Score {
			return reranked[i].Score > reranked[j].Score
		}
		return reranked[i].Node.ID < reranked[j].Node.ID
	})

	if len(reranked) > r.topN {
		reranked = reranked[:r.topN]
	}
	return reranked, nil
}
