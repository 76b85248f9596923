package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

// NodeRepository is the document store of retrievable nodes. Node text is
// immutable once written; re-ingesting a document replaces its node set
// wholesale.
type NodeRepository struct {
	db *sql.DB
}

func NewNodeRepository(db *sql.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

func (r *NodeRepository) ReplaceNodes(ctx context.Context, documentID string, nodes []domain.Node) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete stale nodes: %w", err)
	}

	for _, node := range nodes {
		metadata := node.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal node metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO nodes (id, document_id, filename, node_index, text, window_text, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, node.ID, node.DocumentID, node.Filename, node.Index, node.Text, node.Window, metaJSON); err != nil {
			return fmt.Errorf("insert node %s: %w", node.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET node_count = $2, updated_at = $3 WHERE id = $1
`, documentID, len(nodes), time.Now().UTC()); err != nil {
		return fmt.Errorf("update document node count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func (r *NodeRepository) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, filename, node_index, text, window_text, metadata
FROM nodes
WHERE id = $1
`, id)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get node", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return node, nil
}

func (r *NodeRepository) ListNodes(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, filename, node_index, text, window_text, metadata
FROM nodes
ORDER BY document_id, node_index
`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

func (r *NodeRepository) CountNodes(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

func (r *NodeRepository) SaveIndexMeta(ctx context.Context, meta domain.IndexMeta) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO index_meta (id, embed_model, dimension, distance, updated_at)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET embed_model = EXCLUDED.embed_model,
    dimension = EXCLUDED.dimension,
    distance = EXCLUDED.distance,
    updated_at = EXCLUDED.updated_at
`, meta.EmbedModel, meta.Dimension, meta.Distance, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save index meta: %w", err)
	}
	return nil
}

func (r *NodeRepository) GetIndexMeta(ctx context.Context) (*domain.IndexMeta, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT embed_model, dimension, distance FROM index_meta WHERE id = 1
`)

	var meta domain.IndexMeta
	if err := row.Scan(&meta.EmbedModel, &meta.Dimension, &meta.Distance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrStorageNotFound, "get index meta",
				errors.New("index metadata missing; run ingestion first"))
		}
		return nil, fmt.Errorf("scan index meta: %w", err)
	}
	return &meta, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*domain.Node, error) {
	var node domain.Node
	var metaRaw []byte
	if err := row.Scan(&node.ID, &node.DocumentID, &node.Filename, &node.Index, &node.Text, &node.Window, &metaRaw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaRaw, &node.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal node metadata: %w", err)
	}
	return &node, nil
}
