package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragforge/ragforge/internal/rag"
)

// CachedProvider decorates an Embedder with a redis-backed cache, keyed by
// model and text content. Identical inputs always produce identical
// vectors, so cached entries never go stale; the TTL only bounds memory.
// Safe for concurrent use across query runs.
type CachedProvider struct {
	inner     rag.Embedder
	client    *redis.Client
	model     string
	ttl       time.Duration
	batchSize int
	logger    *log.Logger
}

func NewCachedProvider(inner rag.Embedder, client *redis.Client, model string, ttl time.Duration, batchSize int, logger *log.Logger) *CachedProvider {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &CachedProvider{
		inner:     inner,
		client:    client,
		model:     model,
		ttl:       ttl,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Encode returns vectors for all texts, serving hits from redis and
// batching misses through the underlying provider. Cache failures degrade
// to direct encoding with a warning; they never fail the query.
func (p *CachedProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = p.cacheKey(t)
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int

	cached, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		p.logger.Printf("warning: embedding cache read failed: %v", err)
		missIdx = make([]int, len(texts))
		for i := range texts {
			missIdx[i] = i
		}
	} else {
		for i, raw := range cached {
			s, ok := raw.(string)
			if !ok {
				missIdx = append(missIdx, i)
				continue
			}
			var vec []float32
			if err := json.Unmarshal([]byte(s), &vec); err != nil {
				missIdx = append(missIdx, i)
				continue
			}
			vectors[i] = vec
		}
	}

	for start := 0; start < len(missIdx); start += p.batchSize {
		end := start + p.batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batch := missIdx[start:end]
		batchTexts := make([]string, len(batch))
		for i, idx := range batch {
			batchTexts[i] = texts[idx]
		}
		encoded, err := p.inner.Encode(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		if len(encoded) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(encoded), len(batch))
		}
		for i, idx := range batch {
			vectors[idx] = encoded[i]
			p.store(ctx, keys[idx], encoded[i])
		}
	}

	return vectors, nil
}

func (p *CachedProvider) store(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := p.client.Set(ctx, key, raw, p.ttl).Err(); err != nil {
		p.logger.Printf("warning: embedding cache write failed: %v", err)
	}
}

func (p *CachedProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(p.model + "\x00" + text))
	return "ragforge:emb:" + hex.EncodeToString(sum[:])
}
