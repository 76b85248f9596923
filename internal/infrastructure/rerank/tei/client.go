// Package tei talks to a text-embeddings-inference rerank endpoint serving a
// cross-encoder model. Each (query, passage) pair is scored jointly; scores
// come back in input order.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mkravets/deep-researcher/internal/core/domain"
	"github.com/mkravets/deep-researcher/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	var results []rerankResult
	call := func(ctx context.Context) error {
		var err error
		results, err = c.rerank(ctx, query, passages)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "rerank.score", call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	// The endpoint returns results sorted by score; restore input order so
	// callers get one score per passage.
	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, result := range results {
		if result.Index < 0 || result.Index >= len(passages) {
			return nil, fmt.Errorf("rerank result index %d out of range for %d passages", result.Index, len(passages))
		}
		if seen[result.Index] {
			return nil, fmt.Errorf("rerank result index %d returned twice", result.Index)
		}
		scores[result.Index] = result.Score
		seen[result.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing score for passage %d", i)
		}
	}
	return scores, nil
}

func (c *Client) rerank(ctx context.Context, query string, passages []string) ([]rerankResult, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: passages})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, domain.WrapError(domain.ErrTemporary, "rerank request", err)
		}
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		statusErr := fmt.Errorf("rerank status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, domain.WrapError(domain.ErrRateLimited, "rerank", statusErr)
		case resp.StatusCode >= 500:
			return nil, domain.WrapError(domain.ErrTemporary, "rerank", statusErr)
		default:
			return nil, statusErr
		}
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return results, nil
}
