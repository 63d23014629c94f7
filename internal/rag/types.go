package rag

import (
	"context"
	"time"
)

// CompletionOptions are the sampling options passed to a language model call.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// LanguageModel sends a prompt to a completion endpoint and returns the
// generated text. Transport and timeout failures surface as upstream errors.
type LanguageModel interface {
	Complete(ctx context.Context, model string, prompt string, opts CompletionOptions) (string, error)
}

// Embedder maps texts to fixed-dimension vectors, batched.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker scores a (query, document) pair for relevance.
type Reranker interface {
	Score(ctx context.Context, query string, document string) (float64, error)
}

// VectorStore stores embedded chunks and answers nearest-neighbour queries.
type VectorStore interface {
	Exists(ctx context.Context) (bool, error)
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, k int) ([]SearchHit, error)
}

// ChunkMetadata carries document-level provenance for a stored chunk.
type ChunkMetadata struct {
	Title       string    `json:"title,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	MimeType    string    `json:"mime_type,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	UploadedAt  time.Time `json:"uploaded_at,omitempty"`
}

// ChunkPayload is the stored payload of a vector point.
type ChunkPayload struct {
	Content    string        `json:"content"`
	RawContent string        `json:"raw_content,omitempty"`
	ChunkID    int           `json:"chunk_id"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// DocumentChunk is a chunk produced by ingestion, ready for embedding.
type DocumentChunk struct {
	Content    string
	RawContent string
	ChunkID    int
	Metadata   ChunkMetadata
}

// Point is a single vector with payload written to the store.
type Point struct {
	ID      string
	Vector  []float32
	Payload ChunkPayload
}

// SearchHit is one nearest-neighbour result, ordered by store-native
// similarity.
type SearchHit struct {
	ID      string
	Score   float64
	Payload ChunkPayload
}

// ExpandedQuery is the output of query expansion. HypotheticalDocument is
// the text actually embedded for retrieval; Variations are labelled
// rewrites kept for observability only.
type ExpandedQuery struct {
	Original             string
	HypotheticalDocument string
	Variations           string
}

// RetrievedChunk is a reranked retrieval result. Ordering is transient.
type RetrievedChunk struct {
	Content string
	Score   float64
	Payload ChunkPayload
}

// CompressedChunk holds the query-relevant extraction of a retrieved chunk.
// CompressionRatio may exceed 1.0 when the model elaborates.
type CompressedChunk struct {
	Source            RetrievedChunk
	CompressedContent string
	CompressionRatio  float64
}

// Confidence buckets for a validation score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ValidationScore holds the three sub-scores and their derived fields.
// Sub-scores are always clamped to [0,1].
type ValidationScore struct {
	Groundedness    float64 `json:"groundedness_score"`
	Relevance       float64 `json:"relevance_score"`
	Accuracy        float64 `json:"accuracy_score"`
	Overall         float64 `json:"overall_quality"`
	NeedsCorrection bool    `json:"needs_correction"`
	ConfidenceLevel string  `json:"confidence_level"`
}

// CorrectionOutcome tags one completed correction-loop iteration.
type CorrectionOutcome struct {
	Accepted bool
	Before   float64
	After    float64
}

// RetrievalMetadata summarises retrieval for the final result.
type RetrievalMetadata struct {
	DocumentsRetrieved        int  `json:"documents_retrieved"`
	DocumentsAfterCompression int  `json:"documents_after_compression"`
	ExpansionUsed             bool `json:"hyde_used"`
}

// PipelineResult is the terminal output of one query run.
type PipelineResult struct {
	Query             string
	Response          string
	ContextUsed       []string
	ValidationScore   ValidationScore
	CorrectionsMade   int
	Corrections       []CorrectionOutcome
	RetrievalMetadata RetrievalMetadata
}
