package bm25

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

type posting struct {
	nodeAt int
	tf     int
}

// Index is an in-memory BM25 index over the full node set. It is built once
// from the document store and is read-only afterwards, so concurrent
// searches need no locking.
type Index struct {
	k1 float64
	b  float64

	nodes     []domain.Node
	lengths   []int
	postings  map[string][]posting
	avgLength float64
}

// Build computes term statistics for the given nodes. Both the node text and
// its window contribute terms; the window carries the surrounding sentences
// that make short sentence-nodes findable.
func Build(nodes []domain.Node, k1, b float64) *Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}

	idx := &Index{
		k1:       k1,
		b:        b,
		nodes:    nodes,
		lengths:  make([]int, len(nodes)),
		postings: map[string][]posting{},
	}

	totalLength := 0
	for at, node := range nodes {
		tokens := tokenize(node.Text + " " + node.Window)
		idx.lengths[at] = len(tokens)
		totalLength += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for term, count := range tf {
			idx.postings[term] = append(idx.postings[term], posting{nodeAt: at, tf: count})
		}
	}
	if len(nodes) > 0 {
		idx.avgLength = float64(totalLength) / float64(len(nodes))
	}
	return idx
}

func (idx *Index) Size() int { return len(idx.nodes) }

// Search scores every node containing a query term and returns up to k
// ScoredNodes by descending BM25 score. Ties are broken by node ID so
// repeated identical queries order identically. A query with no matching
// terms returns an empty list, not an error.
func (idx *Index) Search(_ context.Context, queryText string, k int) ([]domain.ScoredNode, error) {
	if k <= 0 || len(idx.nodes) == 0 {
		return nil, nil
	}

	queryTokens := tokenize(queryText)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	scores := make(map[int]float64)
	n := float64(len(idx.nodes))
	for _, term := range queryTokens {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(len(postings))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)

		for _, p := range postings {
			tf := float64(p.tf)
			dl := float64(idx.lengths[p.nodeAt])
			norm := tf + idx.k1*(1-idx.b+idx.b*dl/idx.avgLength)
			scores[p.nodeAt] += idf * (tf * (idx.k1 + 1)) / norm
		}
	}

	results := make([]domain.ScoredNode, 0, len(scores))
	for at, score := range scores {
		results = append(results, domain.ScoredNode{Node: idx.nodes[at], Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Node.ID < results[j].Node.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
