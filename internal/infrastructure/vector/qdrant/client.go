package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

// Client talks to Qdrant's HTTP API. Node vectors are stored as points whose
// payload carries the node back-reference; node content itself is owned by
// the document store.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) IndexNodes(ctx context.Context, nodes []domain.Node, vectors [][]float32) error {
	if len(nodes) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(nodes) != len(vectors) {
		return fmt.Errorf("nodes/vectors mismatch: %d/%d", len(nodes), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(nodes))
	for i, node := range nodes {
		points = append(points, point{
			ID:     node.ID,
			Vector: vectors[i],
			Payload: map[string]any{
				"node_id":    node.ID,
				"doc_id":     node.DocumentID,
				"filename":   node.Filename,
				"node_index": node.Index,
				"text":       node.Text,
				"window":     node.Window,
			},
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status: %s", resp.Status)
	}
	return nil
}

// Search returns up to k nodes by descending cosine similarity. The query
// vector must match the collection's dimensionality; a mismatch is surfaced
// as ErrDimensionMismatch, never coerced.
func (c *Client) Search(ctx context.Context, queryVector []float32, k int) ([]domain.ScoredNode, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "vector search", fmt.Errorf("k must be >= 1, got %d", k))
	}

	dim, err := c.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if len(queryVector) != dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "vector search",
			fmt.Errorf("query vector has %d dimensions, index expects %d", len(queryVector), dim))
	}

	body, err := json.Marshal(map[string]any{
		"vector":       queryVector,
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.ScoredNode, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ScoredNode{
			Node: domain.Node{
				ID:         getStringPayload(r.Payload, "node_id"),
				DocumentID: getStringPayload(r.Payload, "doc_id"),
				Filename:   getStringPayload(r.Payload, "filename"),
				Index:      getIntPayload(r.Payload, "node_index"),
				Text:       getStringPayload(r.Payload, "text"),
				Window:     getStringPayload(r.Payload, "window"),
			},
			Score: r.Score,
		})
	}
	return out, nil
}

// Dimension reads the collection's configured vector size. Used both per
// search and for the fail-fast startup validation against the embedding
// model's dimensionality.
func (c *Client) Dimension(ctx context.Context) (int, error) {
	c.ensureMu.Lock()
	if c.ensuredCollection {
		size := c.ensuredVectorSize
		c.ensureMu.Unlock()
		return size, nil
	}
	c.ensureMu.Unlock()

	size, err := c.fetchCollectionSize(ctx)
	if err != nil {
		return 0, err
	}
	if size > 0 {
		c.markCollectionEnsured(size)
	}
	return size, nil
}

func (c *Client) fetchCollectionSize(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create collection info request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant collection info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, domain.WrapError(domain.ErrStorageNotFound, "collection info",
			fmt.Errorf("collection %q does not exist", c.collection))
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("qdrant collection info status: %s", resp.Status)
	}

	var infoResp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&infoResp); err != nil {
		return 0, fmt.Errorf("decode collection info: %w", err)
	}
	return infoResp.Result.Config.Params.Vectors.Size, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	// An existing collection may have been created with a different model;
	// its actual size decides, never the requested one.
	if resp.StatusCode == http.StatusConflict {
		existingSize, err := c.fetchCollectionSize(ctx)
		if err != nil {
			return err
		}
		if existingSize != vectorSize {
			return domain.WrapError(domain.ErrDimensionMismatch, "ensure collection",
				fmt.Errorf("collection %q has size %d, vectors have %d", c.collection, existingSize, vectorSize))
		}
		c.markCollectionEnsured(existingSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(parsed)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
