package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragforge/ragforge/internal/ingest"
	"github.com/ragforge/ragforge/internal/rag"
	"github.com/ragforge/ragforge/internal/telemetry"
)

type fakePipeline struct {
	result *rag.PipelineResult
	err    error

	lastQuery      string
	lastHyde       bool
	lastMax        int
	ingested       int
	ingestedChunks int
}

func (f *fakePipeline) ProcessQuery(_ context.Context, query string, useExpansion bool, maxCorrections int) (*rag.PipelineResult, error) {
	f.lastQuery = query
	f.lastHyde = useExpansion
	f.lastMax = maxCorrections
	return f.result, f.err
}

func (f *fakePipeline) Ingest(_ context.Context, chunks []rag.DocumentChunk, _ [][]float32) error {
	f.ingested++
	f.ingestedChunks += len(chunks)
	return nil
}

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestHandlers(pipeline *fakePipeline, embedder rag.Embedder) *Handlers {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	return NewHandlers(pipeline, embedder, ingest.NewProcessor(), ingest.NewChunker(800, 200), metrics, log.New(log.Writer(), "[TEST] ", 0))
}

func doJSON(t *testing.T, h *Handlers, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.Register(e.Group("/api"))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpointDefaults(t *testing.T) {
	pipeline := &fakePipeline{result: &rag.PipelineResult{
		Query:           "what is hnsw?",
		Response:        "an index structure",
		ValidationScore: rag.ValidationScore{Overall: 0.9, ConfidenceLevel: rag.ConfidenceHigh},
	}}
	h := newTestHandlers(pipeline, &fakeEmbedder{})

	rec := doJSON(t, h, http.MethodPost, "/api/query", `{"query":"what is hnsw?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !pipeline.lastHyde {
		t.Fatalf("expansion should default to on")
	}
	if pipeline.lastMax != defaultMaxCorrections {
		t.Fatalf("max corrections = %d", pipeline.lastMax)
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "an index structure" {
		t.Fatalf("response = %q", resp.Response)
	}
	if resp.ValidationScores.ConfidenceLevel != rag.ConfidenceHigh {
		t.Fatalf("scores = %+v", resp.ValidationScores)
	}
}

func TestQueryEndpointOverrides(t *testing.T) {
	pipeline := &fakePipeline{result: &rag.PipelineResult{}}
	h := newTestHandlers(pipeline, &fakeEmbedder{})

	rec := doJSON(t, h, http.MethodPost, "/api/query", `{"query":"q","use_hyde":false,"max_corrections":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if pipeline.lastHyde {
		t.Fatalf("expansion override ignored")
	}
	if pipeline.lastMax != 0 {
		t.Fatalf("max corrections = %d", pipeline.lastMax)
	}
}

func TestQueryEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		wantKind string
	}{
		{rag.NewError(rag.KindValidation, "empty query", nil), http.StatusBadRequest, "validation"},
		{rag.NewError(rag.KindUpstream, "model down", nil), http.StatusBadGateway, "upstream"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		pipeline := &fakePipeline{err: tc.err}
		h := newTestHandlers(pipeline, &fakeEmbedder{})

		rec := doJSON(t, h, http.MethodPost, "/api/query", `{"query":"q"}`)
		if rec.Code != tc.status {
			t.Fatalf("err %v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var body HTTPError
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Kind != tc.wantKind {
			t.Fatalf("err %v: kind = %q, want %q", tc.err, body.Kind, tc.wantKind)
		}
	}
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUploadDocument(t *testing.T) {
	pipeline := &fakePipeline{}
	h := newTestHandlers(pipeline, &fakeEmbedder{})
	e := echo.New()
	h.Register(e.Group("/api"))

	body, contentType := multipartBody(t, "file", "notes.txt", "some document text for ingestion")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Filename != "notes.txt" || resp.Status != "success" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ChunksCreated == 0 || resp.ChunksCreated != resp.EmbeddingsGenerated {
		t.Fatalf("resp = %+v", resp)
	}
	if pipeline.ingested != 1 || pipeline.ingestedChunks != resp.ChunksCreated {
		t.Fatalf("pipeline ingest calls = %d (%d chunks)", pipeline.ingested, pipeline.ingestedChunks)
	}
}

func TestUploadDocumentMissingFile(t *testing.T) {
	h := newTestHandlers(&fakePipeline{}, &fakeEmbedder{})
	rec := doJSON(t, h, http.MethodPost, "/api/documents", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadDocumentTooLarge(t *testing.T) {
	pipeline := &fakePipeline{}
	h := newTestHandlers(pipeline, &fakeEmbedder{})
	e := echo.New()
	h.Register(e.Group("/api"))

	body, contentType := multipartBody(t, "file", "huge.txt", strings.Repeat("a", maxUploadBytes+1))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
	if pipeline.ingested != 0 {
		t.Fatalf("oversized upload reached the pipeline")
	}
}

func TestUploadDocumentFilenameTooLong(t *testing.T) {
	h := newTestHandlers(&fakePipeline{}, &fakeEmbedder{})
	e := echo.New()
	h.Register(e.Group("/api"))

	body, contentType := multipartBody(t, "file", strings.Repeat("x", maxFilenameLength+1)+".txt", "content")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadDocumentRejectsBinary(t *testing.T) {
	pipeline := &fakePipeline{}
	h := newTestHandlers(pipeline, &fakeEmbedder{})
	e := echo.New()
	h.Register(e.Group("/api"))

	body, contentType := multipartBody(t, "file", "blob.bin", "\xff\xfe\x00\x81")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if pipeline.ingested != 0 {
		t.Fatalf("binary upload reached the pipeline")
	}
}

func TestUploadDocumentEmbedderFailure(t *testing.T) {
	h := newTestHandlers(&fakePipeline{}, &fakeEmbedder{err: fmt.Errorf("embedding api down")})
	e := echo.New()
	h.Register(e.Group("/api"))

	body, contentType := multipartBody(t, "file", "notes.txt", "content")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatsCountsQueries(t *testing.T) {
	pipeline := &fakePipeline{result: &rag.PipelineResult{CorrectionsMade: 2}}
	h := newTestHandlers(pipeline, &fakeEmbedder{})
	e := echo.New()
	h.Register(e.Group("/api"))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"q"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("query %d: status = %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.QueriesProcessed != 3 || stats.QueriesFailed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.CorrectionsMade != 6 {
		t.Fatalf("corrections = %d", stats.CorrectionsMade)
	}
}
