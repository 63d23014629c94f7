package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ragforge/ragforge/internal/rag"
)

// HTTPReranker scores pairs against a cross-encoder service exposing a
// TEI-style /rerank endpoint.
type HTTPReranker struct {
	url        string
	httpClient *http.Client
}

func NewHTTPReranker(url string, timeout time.Duration) *HTTPReranker {
	return &HTTPReranker{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPReranker) Score(ctx context.Context, query string, document string) (float64, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": query,
		"texts": []string{document},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", r.url+"/rerank", bytes.NewBuffer(body))
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("reranker returned status %d", resp.StatusCode)
	}

	var out []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("empty rerank response")
	}
	return out[0].Score, nil
}

const relevanceScorePrompt = `Query: %s

Document: %s

Task: Rate how relevant this document is to the query. Score from 0.0 to 1.0 where:
- 1.0 = Directly relevant, contains the answer
- 0.5 = Partially relevant
- 0.0 = Not relevant

Provide only a single number between 0.0 and 1.0:`

// LLMReranker scores pairs with a completion model when no cross-encoder
// service is configured. Slower and coarser, but needs no extra service.
type LLMReranker struct {
	llm   rag.LanguageModel
	model string
}

func NewLLMReranker(llm rag.LanguageModel, model string) *LLMReranker {
	return &LLMReranker{llm: llm, model: model}
}

func (r *LLMReranker) Score(ctx context.Context, query string, document string) (float64, error) {
	out, err := r.llm.Complete(ctx, r.model, fmt.Sprintf(relevanceScorePrompt, query, document), rag.CompletionOptions{})
	if err != nil {
		return 0, err
	}
	return parseScore(out), nil
}

// parseScore mirrors the validator's recovery: non-numeric output falls
// back to a moderate 0.5 and the result is clamped into [0,1].
func parseScore(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
