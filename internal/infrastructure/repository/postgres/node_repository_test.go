package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

func newNodeRepoWithMock(t *testing.T) (*NodeRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("new sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewNodeRepository(db), mock
}

func TestReplaceNodesDeletesStaleAndInsertsInOneTx(t *testing.T) {
	repo, mock := newNodeRepoWithMock(t)

	nodes := []domain.Node{
		{ID: "n-1", DocumentID: "doc-1", Filename: "report.pdf", Index: 0, Text: "first", Window: "first second"},
		{ID: "n-2", DocumentID: "doc-1", Filename: "report.pdf", Index: 1, Text: "second", Window: "first second third"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM nodes WHERE document_id").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO nodes").
		WithArgs("n-1", "doc-1", "report.pdf", 0, "first", "first second", []byte("{}")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO nodes").
		WithArgs("n-2", "doc-1", "report.pdf", 1, "second", "first second third", []byte("{}")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET node_count").
		WithArgs("doc-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceNodes(context.Background(), "doc-1", nodes); err != nil {
		t.Fatalf("ReplaceNodes: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceNodesRollsBackOnInsertError(t *testing.T) {
	repo, mock := newNodeRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM nodes WHERE document_id").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO nodes").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.ReplaceNodes(context.Background(), "doc-1", []domain.Node{
		{ID: "n-1", DocumentID: "doc-1", Filename: "report.pdf"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetNodeRoundTripPreservesContent(t *testing.T) {
	repo, mock := newNodeRepoWithMock(t)

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "filename", "node_index", "text", "window_text", "metadata",
	}).AddRow("n-1", "doc-1", "report.pdf", 4, "revenue grew 12%", "context revenue grew 12% context",
		[]byte(`{"page":"3"}`))

	mock.ExpectQuery("SELECT id, document_id, filename, node_index, text, window_text, metadata").
		WithArgs("n-1").
		WillReturnRows(rows)

	node, err := repo.GetNode(context.Background(), "n-1")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if node.Text != "revenue grew 12%" {
		t.Fatalf("text = %q", node.Text)
	}
	if node.Window != "context revenue grew 12% context" {
		t.Fatalf("window = %q", node.Window)
	}
	if node.Metadata["page"] != "3" {
		t.Fatalf("metadata = %v", node.Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetNodeMapsMissingRowToDomainNotFound(t *testing.T) {
	repo, mock := newNodeRepoWithMock(t)

	mock.ExpectQuery("SELECT id, document_id, filename, node_index, text, window_text, metadata").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetNode(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListNodesReturnsAllInStableOrder(t *testing.T) {
	repo, mock := newNodeRepoWithMock(t)

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "filename", "node_index", "text", "window_text", "metadata",
	}).
		AddRow("n-1", "doc-1", "a.pdf", 0, "alpha", "alpha beta", []byte("{}")).
		AddRow("n-2", "doc-1", "a.pdf", 1, "beta", "alpha beta gamma", []byte("{}")).
		AddRow("n-3", "doc-2", "b.pdf", 0, "gamma", "gamma", []byte("{}"))

	mock.ExpectQuery("SELECT id, document_id, filename, node_index, text, window_text, metadata").
		WillReturnRows(rows)

	nodes, err := repo.ListNodes(context.Background())
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("len = %d, want 3", len(nodes))
	}
	if nodes[0].ID != "n-1" || nodes[2].ID != "n-3" {
		t.Fatalf("unexpected order: %s, %s, %s", nodes[0].ID, nodes[1].ID, nodes[2].ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountNodes(t *testing.T) {
	repo, mock := newNodeRepoWithMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM nodes`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.CountNodes(context.Background())
	if err != nil {
		t.Fatalf("CountNodes: %v", err)
	}
	if count != 42 {
		t.Fatalf("count = %d, want 42", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetIndexMetaMapsMissingRowToStorageNotFound(t *testing.T) {
	repo, mock := newNodeRepoWithMock(t)

	mock.ExpectQuery("SELECT embed_model, dimension, distance FROM index_meta").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetIndexMeta(context.Background())
	if !domain.IsKind(err, domain.ErrStorageNotFound) {
		t.Fatalf("err = %v, want ErrStorageNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveIndexMetaUpserts(t *testing.T) {
	repo, mock := newNodeRepoWithMock(t)

	mock.ExpectExec("INSERT INTO index_meta").
		WithArgs("all-MiniLM-L6-v2", 384, "cosine", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveIndexMeta(context.Background(), domain.IndexMeta{
		EmbedModel: "all-MiniLM-L6-v2",
		Dimension:  384,
		Distance:   "cosine",
	})
	if err != nil {
		t.Fatalf("SaveIndexMeta: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
