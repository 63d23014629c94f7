package rag

import (
	"context"
	"fmt"
	"math"
	"testing"
)

func retrieved(content string) RetrievedChunk {
	return RetrievedChunk{Content: content, Payload: ChunkPayload{Content: content}}
}

func TestCompressPreservesOrderAndDropsIrrelevant(t *testing.T) {
	llm := &fakeLLM{compressed: map[string]string{
		"alpha source": "alpha extract",
		"gamma source": "gamma extract",
	}}
	c := NewCompressor(llm, "prep")

	out, err := c.Compress(context.Background(), "q", []RetrievedChunk{
		retrieved("alpha source"),
		retrieved("beta source"), // fake answers NOT_RELEVANT
		retrieved("gamma source"),
	})
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].CompressedContent != "alpha extract" || out[1].CompressedContent != "gamma extract" {
		t.Fatalf("order or content wrong: %+v", out)
	}
	if out[0].Source.Content != "alpha source" {
		t.Fatalf("source chunk not carried: %+v", out[0].Source)
	}
}

func TestCompressRatio(t *testing.T) {
	llm := &fakeLLM{compressed: map[string]string{
		"0123456789": "01234",
	}}
	c := NewCompressor(llm, "prep")

	out, err := c.Compress(context.Background(), "q", []RetrievedChunk{retrieved("0123456789")})
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if want := 0.5; math.Abs(out[0].CompressionRatio-want) > 1e-9 {
		t.Fatalf("ratio = %v, want %v", out[0].CompressionRatio, want)
	}
}

func TestCompressModelFailureAborts(t *testing.T) {
	llm := &fakeLLM{err: fmt.Errorf("timeout")}
	c := NewCompressor(llm, "prep")

	_, err := c.Compress(context.Background(), "q", []RetrievedChunk{retrieved("doc")})
	if err == nil || KindOf(err) != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestCompressEmptyInput(t *testing.T) {
	c := NewCompressor(&fakeLLM{}, "prep")

	out, err := c.Compress(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("len = %d, want 0", len(out))
	}
}
