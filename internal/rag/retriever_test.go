package rag

import (
	"context"
	"fmt"
	"testing"
)

func TestSearchReranksAndTruncates(t *testing.T) {
	store := &fakeVectorStore{exists: true, hits: []SearchHit{
		hit("low", 0.9),
		hit("high", 0.5),
		hit("mid", 0.7),
	}}
	reranker := &fakeReranker{scores: map[string]float64{
		"low":  0.1,
		"high": 0.95,
		"mid":  0.6,
	}}
	r := NewRetriever(store, reranker, testLogger(t))

	chunks, err := r.Search(context.Background(), []float32{1}, "query", 20, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if chunks[0].Content != "high" || chunks[1].Content != "mid" {
		t.Fatalf("order = [%s %s]", chunks[0].Content, chunks[1].Content)
	}
	if chunks[0].Score != 0.95 {
		t.Fatalf("reranker score not carried: %v", chunks[0].Score)
	}
}

func TestSearchTiesKeepStoreOrder(t *testing.T) {
	store := &fakeVectorStore{exists: true, hits: []SearchHit{
		hit("first", 0.9),
		hit("second", 0.8),
		hit("third", 0.7),
	}}
	// All rerank scores equal: the store's similarity order must survive.
	r := NewRetriever(store, &fakeReranker{}, testLogger(t))

	chunks, err := r.Search(context.Background(), []float32{1}, "query", 20, 8)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := []string{chunks[0].Content, chunks[1].Content, chunks[2].Content}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSearchMissingCollectionIsEmpty(t *testing.T) {
	r := NewRetriever(&fakeVectorStore{exists: false}, &fakeReranker{}, testLogger(t))

	chunks, err := r.Search(context.Background(), []float32{1}, "query", 20, 8)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestSearchStoreFailureDegradesToEmpty(t *testing.T) {
	store := &fakeVectorStore{exists: true, searchErr: fmt.Errorf("connection reset")}
	r := NewRetriever(store, &fakeReranker{}, testLogger(t))

	chunks, err := r.Search(context.Background(), []float32{1}, "query", 20, 8)
	if err != nil {
		t.Fatalf("store failures must not be fatal: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestSearchRerankerFailurePropagates(t *testing.T) {
	store := &fakeVectorStore{exists: true, hits: []SearchHit{hit("doc", 0.9)}}
	r := NewRetriever(store, &fakeReranker{err: fmt.Errorf("rerank endpoint down")}, testLogger(t))

	_, err := r.Search(context.Background(), []float32{1}, "query", 20, 8)
	if err == nil {
		t.Fatalf("expected error")
	}
	if KindOf(err) != KindUpstream {
		t.Fatalf("kind = %v, want upstream", KindOf(err))
	}
}

func TestAddDocumentsBatchesUpserts(t *testing.T) {
	store := &fakeVectorStore{}
	r := NewRetriever(store, &fakeReranker{}, testLogger(t))

	n := upsertBatchSize + 50
	chunks := make([]DocumentChunk, n)
	embeddings := make([][]float32, n)
	for i := range chunks {
		chunks[i] = DocumentChunk{Content: fmt.Sprintf("chunk %d", i), ChunkID: i}
		embeddings[i] = []float32{float32(i), 1, 2}
	}
	if err := r.AddDocuments(context.Background(), chunks, embeddings); err != nil {
		t.Fatalf("add documents: %v", err)
	}
	if store.ensuredDim != 3 {
		t.Fatalf("ensured dimension = %d", store.ensuredDim)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("batches = %d, want 2", len(store.upserts))
	}
	if len(store.upserts[0]) != upsertBatchSize || len(store.upserts[1]) != 50 {
		t.Fatalf("batch sizes = %d, %d", len(store.upserts[0]), len(store.upserts[1]))
	}
	seen := make(map[string]bool)
	for _, batch := range store.upserts {
		for _, p := range batch {
			if p.ID == "" || seen[p.ID] {
				t.Fatalf("point id %q empty or duplicated", p.ID)
			}
			seen[p.ID] = true
		}
	}
}

func TestAddDocumentsLengthMismatch(t *testing.T) {
	r := NewRetriever(&fakeVectorStore{}, &fakeReranker{}, testLogger(t))

	err := r.AddDocuments(context.Background(), []DocumentChunk{{Content: "a"}}, nil)
	if err == nil || KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestAddDocumentsEmptyIsNoop(t *testing.T) {
	store := &fakeVectorStore{}
	r := NewRetriever(store, &fakeReranker{}, testLogger(t))

	if err := r.AddDocuments(context.Background(), nil, nil); err != nil {
		t.Fatalf("add documents: %v", err)
	}
	if store.ensuredDim != 0 || len(store.upserts) != 0 {
		t.Fatalf("store touched on empty input")
	}
}
