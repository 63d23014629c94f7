package ingest

import (
	"fmt"
	"strings"

	"github.com/ragforge/ragforge/internal/rag"
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits extracted text into overlapping chunks by recursive
// character splitting on ordered separators.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap, separators: defaultSeparators}
}

// Chunk splits the document and attaches a context header to every
// chunk: the document title, plus the tail of the previous chunk so each
// chunk stands alone during retrieval. RawContent keeps the unadorned
// split.
func (c *Chunker) Chunk(doc ProcessedDocument) []rag.DocumentChunk {
	splits := c.SplitText(doc.Content)

	chunks := make([]rag.DocumentChunk, len(splits))
	for i, split := range splits {
		header := fmt.Sprintf("Document: %s\n", doc.Title)
		if i > 0 {
			prev := splits[i-1]
			if len(prev) > 100 {
				prev = prev[len(prev)-100:]
			}
			header += fmt.Sprintf("Previous context: ...%s...\n", prev)
		}
		chunks[i] = rag.DocumentChunk{
			Content:    header + split,
			RawContent: split,
			ChunkID:    i,
			Metadata: rag.ChunkMetadata{
				Title:       doc.Title,
				Filename:    doc.Filename,
				ContentHash: doc.ContentHash,
				MimeType:    doc.MimeType,
				ChunkIndex:  i,
				TotalChunks: len(splits),
				UploadedAt:  doc.UploadedAt,
			},
		}
	}
	return chunks
}

// SplitText splits text into pieces no larger than chunkSize (plus the
// overlap carried over between neighbours), preferring to break on the
// earliest separator that applies.
func (c *Chunker) SplitText(text string) []string {
	return c.splitRecursive(text, c.separators)
}

func (c *Chunker) splitRecursive(text string, separators []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= c.chunkSize {
		return []string{strings.TrimSpace(text)}
	}
	if len(separators) == 0 || separators[0] == "" {
		return c.splitFixed(text)
	}

	sep := separators[0]
	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		return c.splitRecursive(text, separators[1:])
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, part := range parts {
		if len(part) > c.chunkSize {
			flush()
			chunks = append(chunks, c.splitRecursive(part, separators[1:])...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(part) > c.chunkSize {
			tail := overlapTail(current.String(), c.overlap)
			flush()
			current.WriteString(tail)
		}
		current.WriteString(part)
	}
	flush()
	return chunks
}

// splitFixed cuts text into fixed windows when no separator applies.
func (c *Chunker) splitFixed(text string) []string {
	step := c.chunkSize - c.overlap
	if step <= 0 {
		step = c.chunkSize
	}
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + c.chunkSize
		if end > len(text) {
			end = len(text)
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			chunks = append(chunks, s)
		}
		if end == len(text) {
			break
		}
	}
	return chunks
}

func overlapTail(s string, overlap int) string {
	if overlap <= 0 || len(s) == 0 {
		return ""
	}
	if len(s) <= overlap {
		return s
	}
	return s[len(s)-overlap:]
}
