package rag

import (
	"context"
	"log"
	"sort"

	"github.com/google/uuid"
)

const upsertBatchSize = 100

// Retriever combines dense vector search with cross-encoder reranking.
type Retriever struct {
	store    VectorStore
	reranker Reranker
	logger   *log.Logger
}

func NewRetriever(store VectorStore, reranker Reranker, logger *log.Logger) *Retriever {
	return &Retriever{store: store, reranker: reranker, logger: logger}
}

// Search runs a nearest-neighbour query for up to k hits, rescores every
// hit with the reranker against searchText, and returns the top rerankK
// chunks sorted by reranker score (ties keep store order).
//
// A missing collection or a failing store search both yield an empty
// result; retrieval is never fatal to the overall query. Reranker failures
// propagate.
func (r *Retriever) Search(ctx context.Context, embedding []float32, searchText string, k, rerankK int) ([]RetrievedChunk, error) {
	exists, err := r.store.Exists(ctx)
	if err != nil {
		r.logger.Printf("warning: collection existence check failed: %v", err)
		return nil, nil
	}
	if !exists {
		r.logger.Printf("warning: collection does not exist, no documents to search")
		return nil, nil
	}

	hits, err := r.store.Search(ctx, embedding, k)
	if err != nil {
		r.logger.Printf("warning: vector search failed: %v", err)
		return nil, nil
	}

	chunks := make([]RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		score, err := r.reranker.Score(ctx, searchText, hit.Payload.Content)
		if err != nil {
			return nil, upstream("reranking failed", err)
		}
		chunks = append(chunks, RetrievedChunk{
			Content: hit.Payload.Content,
			Score:   score,
			Payload: hit.Payload,
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })

	if len(chunks) > rerankK {
		chunks = chunks[:rerankK]
	}
	return chunks, nil
}

// AddDocuments embeds nothing itself; it stores already-embedded chunks.
// The backing collection is created lazily, sized to the embedding
// dimensionality, and points are upserted in fixed-size batches under
// fresh identifiers.
func (r *Retriever) AddDocuments(ctx context.Context, chunks []DocumentChunk, embeddings [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(embeddings) {
		return NewError(KindInternal, "chunk and embedding counts differ", nil)
	}

	if err := r.store.EnsureCollection(ctx, len(embeddings[0])); err != nil {
		return upstream("ensure collection failed", err)
	}

	points := make([]Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = Point{
			ID:     uuid.NewString(),
			Vector: embeddings[i],
			Payload: ChunkPayload{
				Content:    chunk.Content,
				RawContent: chunk.RawContent,
				ChunkID:    chunk.ChunkID,
				Metadata:   chunk.Metadata,
			},
		}
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := r.store.Upsert(ctx, points[start:end]); err != nil {
			return upstream("upsert failed", err)
		}
	}
	r.logger.Printf("added %d documents to collection", len(chunks))
	return nil
}
