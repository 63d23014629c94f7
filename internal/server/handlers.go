package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ragforge/ragforge/internal/ingest"
	"github.com/ragforge/ragforge/internal/rag"
	"github.com/ragforge/ragforge/internal/telemetry"
)

const (
	defaultMaxCorrections = 2

	// Upload limits, enforced before any processing.
	maxUploadBytes    = 10 << 20
	maxFilenameLength = 255
)

// QueryService is the pipeline surface the handlers consume.
type QueryService interface {
	ProcessQuery(ctx context.Context, query string, useExpansion bool, maxCorrections int) (*rag.PipelineResult, error)
	Ingest(ctx context.Context, chunks []rag.DocumentChunk, embeddings [][]float32) error
}

// Handlers serves the query and ingestion endpoints.
type Handlers struct {
	Pipeline  QueryService
	Embedder  rag.Embedder
	Processor *ingest.Processor
	Chunker   *ingest.Chunker
	Metrics   *telemetry.Metrics
	Logger    *log.Logger

	start             time.Time
	queriesProcessed  atomic.Int64
	queriesFailed     atomic.Int64
	correctionsMade   atomic.Int64
	documentsIngested atomic.Int64
}

func NewHandlers(pipeline QueryService, embedder rag.Embedder, processor *ingest.Processor, chunker *ingest.Chunker, metrics *telemetry.Metrics, logger *log.Logger) *Handlers {
	return &Handlers{
		Pipeline:  pipeline,
		Embedder:  embedder,
		Processor: processor,
		Chunker:   chunker,
		Metrics:   metrics,
		Logger:    logger,
		start:     time.Now(),
	}
}

func (h *Handlers) Register(g *echo.Group) {
	g.POST("/query", h.query)
	g.POST("/documents", h.uploadDocument)
	g.GET("/stats", h.stats)
}

func (h *Handlers) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	useHyde := true
	if req.UseHyde != nil {
		useHyde = *req.UseHyde
	}
	maxCorrections := defaultMaxCorrections
	if req.MaxCorrections != nil {
		maxCorrections = *req.MaxCorrections
	}

	start := time.Now()
	result, err := h.Pipeline.ProcessQuery(c.Request().Context(), req.Query, useHyde, maxCorrections)
	if err != nil {
		h.queriesFailed.Add(1)
		kind := rag.KindOf(err)
		h.Logger.Printf("query failed (%s): %v", kind, err)
		return c.JSON(statusForKind(kind), HTTPError{Error: err.Error(), Kind: string(kind)})
	}

	h.queriesProcessed.Add(1)
	h.correctionsMade.Add(int64(result.CorrectionsMade))

	return c.JSON(http.StatusOK, QueryResponse{
		Query:            result.Query,
		Response:         result.Response,
		ProcessingTime:   time.Since(start).Seconds(),
		ValidationScores: result.ValidationScore,
		CorrectionsMade:  result.CorrectionsMade,
		Metadata:         result.RetrievalMetadata,
	})
}

func (h *Handlers) uploadDocument(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field required")
	}
	if file.Filename == "" || len(file.Filename) > maxFilenameLength {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filename")
	}
	if file.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds the 10MB upload limit")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	// The size header is client-supplied; the read is capped regardless.
	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(content) > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds the 10MB upload limit")
	}
	if len(content) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty file")
	}

	ctx := c.Request().Context()
	doc, err := h.Processor.Process(content, file.Filename)
	if err != nil {
		h.Metrics.DocumentUploaded("error", 0, 0)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	chunks := h.Chunker.Chunk(doc)
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	embeddings, err := h.Embedder.Encode(ctx, texts)
	if err != nil {
		h.Metrics.DocumentUploaded("error", len(chunks), 0)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err := h.Pipeline.Ingest(ctx, chunks, embeddings); err != nil {
		h.Metrics.DocumentUploaded("error", len(chunks), len(embeddings))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	h.documentsIngested.Add(1)
	h.Metrics.DocumentUploaded("success", len(chunks), len(embeddings))
	h.Logger.Printf("ingested %s: %d chunks", file.Filename, len(chunks))

	return c.JSON(http.StatusOK, UploadResponse{
		Filename:            file.Filename,
		ChunksCreated:       len(chunks),
		EmbeddingsGenerated: len(embeddings),
		Status:              "success",
	})
}

func (h *Handlers) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, StatsResponse{
		UptimeSeconds:     time.Since(h.start).Seconds(),
		QueriesProcessed:  h.queriesProcessed.Load(),
		QueriesFailed:     h.queriesFailed.Load(),
		CorrectionsMade:   h.correctionsMade.Load(),
		DocumentsIngested: h.documentsIngested.Load(),
	})
}

func statusForKind(kind rag.ErrorKind) int {
	switch kind {
	case rag.KindValidation:
		return http.StatusBadRequest
	case rag.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
