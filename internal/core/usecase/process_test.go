package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, error) {
	return f.text, f.err
}

type parserFake struct {
	nodes []domain.Node
}

func (f *parserFake) Parse(*domain.Document, string) []domain.Node { return f.nodes }

type nodeStoreFake struct {
	replaced []domain.Node
	err      error
}

func (f *nodeStoreFake) ReplaceNodes(_ context.Context, _ string, nodes []domain.Node) error {
	if f.err != nil {
		return f.err
	}
	f.replaced = nodes
	return nil
}

func (f *nodeStoreFake) GetNode(context.Context, string) (*domain.Node, error) {
	return nil, errors.New("not implemented")
}
func (f *nodeStoreFake) ListNodes(context.Context) ([]domain.Node, error) { return nil, nil }
func (f *nodeStoreFake) CountNodes(context.Context) (int, error)          { return len(f.replaced), nil }

type vectorWriterFake struct {
	indexed [][]float32
	err     error
}

func (f *vectorWriterFake) IndexNodes(_ context.Context, _ []domain.Node, vectors [][]float32) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = vectors
	return nil
}

func (f *vectorWriterFake) Search(context.Context, []float32, int) ([]domain.ScoredNode, error) {
	return nil, errors.New("not implemented")
}
func (f *vectorWriterFake) Dimension(context.Context) (int, error) { return 0, nil }

type indexMetaFake struct {
	saved *domain.IndexMeta
}

func (f *indexMetaFake) SaveIndexMeta(_ context.Context, meta domain.IndexMeta) error {
	f.saved = &meta
	return nil
}

func (f *indexMetaFake) GetIndexMeta(context.Context) (*domain.IndexMeta, error) {
	return f.saved, nil
}

func newProcessFixture(extractor *extractorFake, parser *parserFake) (*ProcessDocumentUseCase, *docRepoFake, *nodeStoreFake, *vectorWriterFake, *indexMetaFake) {
	repo := &docRepoFake{byID: &domain.Document{ID: "doc-1", Filename: "paper.pdf", StoragePath: "key"}}
	nodes := &nodeStoreFake{}
	vectors := &vectorWriterFake{}
	meta := &indexMetaFake{}
	uc := NewProcessDocumentUseCase(repo, extractor, parser, &embedderFake{vector: []float32{0.1, 0.2}}, nodes, vectors, meta, "all-MiniLM-L6-v2")
	return uc, repo, nodes, vectors, meta
}

func TestProcessByIDSuccess(t *testing.T) {
	parser := &parserFake{nodes: []domain.Node{
		{ID: "n1", DocumentID: "doc-1", Text: "first sentence."},
		{ID: "n2", DocumentID: "doc-1", Text: "second sentence."},
	}}
	uc, repo, nodes, vectors, meta := newProcessFixture(&extractorFake{text: "first sentence. second sentence."}, parser)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(nodes.replaced) != 2 {
		t.Fatalf("expected 2 persisted nodes, got %d", len(nodes.replaced))
	}
	if len(vectors.indexed) != 2 {
		t.Fatalf("expected 2 indexed vectors, got %d", len(vectors.indexed))
	}
	if meta.saved == nil || meta.saved.Dimension != 2 || meta.saved.EmbedModel != "all-MiniLM-L6-v2" {
		t.Fatalf("expected index metadata saved, got %+v", meta.saved)
	}
	last := repo.statuses[len(repo.statuses)-1]
	if last != domain.StatusReady {
		t.Fatalf("expected final status ready, got %s", last)
	}
}

func TestProcessByIDEmptyTextMarksFailed(t *testing.T) {
	uc, repo, _, _, _ := newProcessFixture(&extractorFake{text: ""}, &parserFake{})

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	last := repo.statuses[len(repo.statuses)-1]
	if last != domain.StatusFailed {
		t.Fatalf("expected final status failed, got %s", last)
	}
}

func TestProcessByIDZeroNodesMarksFailed(t *testing.T) {
	uc, repo, _, _, _ := newProcessFixture(&extractorFake{text: "some text"}, &parserFake{})

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if repo.statuses[len(repo.statuses)-1] != domain.StatusFailed {
		t.Fatalf("expected failed status, got %v", repo.statuses)
	}
}
