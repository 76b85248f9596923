package domain

// Node is the atomic retrievable unit: one sentence of source text plus the
// window of surrounding sentences captured at ingestion time.
type Node struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Filename   string            `json:"filename"`
	Index      int               `json:"index"`
	Text       string            `json:"text"`
	Window     string            `json:"window"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ScoredNode pairs a node with a stage-local relevance score. Scores from
// different retrieval stages are not comparable without fusion.
type ScoredNode struct {
	Node  Node    `json:"node"`
	Score float64 `json:"score"`
}

type Answer struct {
	Text    string       `json:"text"`
	Sources []ScoredNode `json:"sources"`
}

// IndexMeta records the embedding configuration the persisted index was
// built with. Query-time configuration must match it exactly.
type IndexMeta struct {
	EmbedModel string `json:"embed_model"`
	Dimension  int    `json:"dimension"`
	Distance   string `json:"distance"`
}
