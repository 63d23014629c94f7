package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(testWriter{t}, "", 0)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// fakeLLM routes completions by prompt shape. Score prompts consume the
// scores queue in order; correction prompts consume the corrections queue.
type fakeLLM struct {
	mu          sync.Mutex
	scores      []string
	corrections []string

	hypothetical string
	variations   string
	compressed   map[string]string
	answer       string

	err error

	completeCalls   []string
	correctionCalls int
}

func (f *fakeLLM) Complete(_ context.Context, model, prompt string, _ CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.completeCalls = append(f.completeCalls, prompt)

	switch {
	case strings.HasPrefix(prompt, "Generate a hypothetical document"):
		return f.hypothetical, nil
	case strings.HasPrefix(prompt, "Generate 3 different variations"):
		return f.variations, nil
	case strings.Contains(prompt, "Task: Extract ONLY the information"):
		for source, out := range f.compressed {
			if strings.Contains(prompt, source) {
				return out, nil
			}
		}
		return NotRelevantSentinel, nil
	case strings.Contains(prompt, "Instructions: Answer the question"):
		return f.answer, nil
	case strings.Contains(prompt, "Provide a corrected response"):
		f.correctionCalls++
		if len(f.corrections) == 0 {
			return "", fmt.Errorf("unexpected correction call")
		}
		out := f.corrections[0]
		f.corrections = f.corrections[1:]
		return out, nil
	case strings.Contains(prompt, "Provide only a single number"):
		if len(f.scores) == 0 {
			return "", fmt.Errorf("score queue exhausted")
		}
		out := f.scores[0]
		f.scores = f.scores[1:]
		return out, nil
	}
	return "", fmt.Errorf("unrecognised prompt: %.60s", prompt)
}

// scoreTriple pushes one validation round (groundedness, relevance,
// accuracy) onto the queue.
func (f *fakeLLM) scoreTriple(g, r, a string) {
	f.scores = append(f.scores, g, r, a)
}

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

type fakeVectorStore struct {
	exists    bool
	existsErr error
	hits      []SearchHit
	searchErr error

	ensuredDim int
	upserts    [][]Point
}

func (f *fakeVectorStore) Exists(context.Context) (bool, error) { return f.exists, f.existsErr }

func (f *fakeVectorStore) EnsureCollection(_ context.Context, dim int) error {
	f.ensuredDim = dim
	return nil
}

func (f *fakeVectorStore) Upsert(_ context.Context, points []Point) error {
	f.upserts = append(f.upserts, points)
	return nil
}

func (f *fakeVectorStore) Search(context.Context, []float32, int) ([]SearchHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

type fakeReranker struct {
	scores map[string]float64
	err    error
}

func (f *fakeReranker) Score(_ context.Context, _, document string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if s, ok := f.scores[document]; ok {
		return s, nil
	}
	return 0.5, nil
}

func hit(content string, score float64) SearchHit {
	return SearchHit{Payload: ChunkPayload{Content: content}, Score: score}
}
