package rag

import (
	"context"
	"fmt"
	"strings"
)

// NotRelevantSentinel is the fixed model output meaning a chunk holds
// nothing useful for the query. Such chunks are dropped, not retained.
const NotRelevantSentinel = "NOT_RELEVANT"

const compressionPrompt = `Query: %s

Document content: %s

Task: Extract ONLY the information from this document that is relevant to answering the query. Remove irrelevant details but keep the essential context. If the document doesn't contain relevant information, respond with "NOT_RELEVANT".

Relevant information:`

// Compressor strips query-irrelevant content from retrieved chunks.
type Compressor struct {
	llm   LanguageModel
	model string
}

func NewCompressor(llm LanguageModel, model string) *Compressor {
	return &Compressor{llm: llm, model: model}
}

// Compress extracts the query-relevant part of each chunk, preserving
// input order and dropping chunks the model marks NOT_RELEVANT.
//
// Chunks are compressed one at a time; a failing model call aborts
// compression for the whole query rather than skipping the chunk, so a
// flaky model cannot silently thin out the context.
func (c *Compressor) Compress(ctx context.Context, query string, chunks []RetrievedChunk) ([]CompressedChunk, error) {
	compressed := make([]CompressedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		out, err := c.llm.Complete(ctx, c.model, fmt.Sprintf(compressionPrompt, query, chunk.Content), CompletionOptions{
			Temperature: 0.1,
		})
		if err != nil {
			return nil, upstream("chunk compression failed", err)
		}
		content := strings.TrimSpace(out)
		if content == NotRelevantSentinel {
			continue
		}
		ratio := 0.0
		if len(chunk.Content) > 0 {
			ratio = float64(len(content)) / float64(len(chunk.Content))
		}
		compressed = append(compressed, CompressedChunk{
			Source:            chunk,
			CompressedContent: content,
			CompressionRatio:  ratio,
		})
	}
	return compressed, nil
}
