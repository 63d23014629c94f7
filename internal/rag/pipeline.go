package rag

import (
	"context"
	"log"
	"strings"
	"time"
)

// Metrics is the slice of telemetry the pipeline reports into. Injected so
// runs are testable in isolation.
type Metrics interface {
	QueryStarted()
	QueryFinished(seconds float64, status string)
	ValidationScores(groundedness, relevance, accuracy, overall float64)
	Corrections(n int)
	RetrievalDocuments(n int)
}

// NopMetrics discards all telemetry.
type NopMetrics struct{}

func (NopMetrics) QueryStarted()                       {}
func (NopMetrics) QueryFinished(float64, string)       {}
func (NopMetrics) ValidationScores(_, _, _, _ float64) {}
func (NopMetrics) Corrections(int)                     {}
func (NopMetrics) RetrievalDocuments(int)              {}

// PipelineOptions wires the pipeline's collaborators and tuning.
type PipelineOptions struct {
	LLM      LanguageModel
	Embedder Embedder
	Store    VectorStore
	Reranker Reranker

	MainModel          string
	PreprocessingModel string
	RetrievalK         int
	RerankK            int

	Metrics Metrics
	Logger  *log.Logger
}

// Pipeline sequences expansion, retrieval, compression, generation and the
// self-validation loop for one query at a time. Independent queries may run
// concurrently; the only shared state lives behind the store, cache and
// metrics collaborators.
type Pipeline struct {
	expander   *Expander
	retriever  *Retriever
	compressor *Compressor
	generator  *Generator
	validator  *Validator
	embedder   Embedder

	retrievalK int
	rerankK    int

	metrics Metrics
	logger  *log.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = 20
	}
	if opts.RerankK <= 0 {
		opts.RerankK = 8
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Pipeline{
		expander:   NewExpander(opts.LLM, opts.PreprocessingModel, opts.Logger),
		retriever:  NewRetriever(opts.Store, opts.Reranker, opts.Logger),
		compressor: NewCompressor(opts.LLM, opts.PreprocessingModel),
		generator:  NewGenerator(opts.LLM, opts.MainModel),
		validator:  NewValidator(opts.LLM, opts.MainModel, opts.PreprocessingModel),
		embedder:   opts.Embedder,
		retrievalK: opts.RetrievalK,
		rerankK:    opts.RerankK,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

// ProcessQuery runs the full pipeline for one query. maxCorrections bounds
// the correction loop; zero disables correction entirely. On failure no
// partial result is returned.
func (p *Pipeline) ProcessQuery(ctx context.Context, query string, useExpansion bool, maxCorrections int) (*PipelineResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewError(KindValidation, "query must not be empty", nil)
	}
	if maxCorrections < 0 {
		return nil, NewError(KindValidation, "max corrections must not be negative", nil)
	}

	start := time.Now()
	p.metrics.QueryStarted()
	status := "error"
	defer func() {
		p.metrics.QueryFinished(time.Since(start).Seconds(), status)
	}()

	expanded, err := p.expander.Expand(ctx, query, useExpansion)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchText := expanded.HypotheticalDocument
	embeddings, err := p.embedder.Encode(ctx, []string{searchText})
	if err != nil {
		return nil, upstream("query embedding failed", err)
	}
	if len(embeddings) == 0 {
		return nil, NewError(KindInternal, "embedder returned no vectors", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	retrieved, err := p.retriever.Search(ctx, embeddings[0], searchText, p.retrievalK, p.rerankK)
	if err != nil {
		return nil, err
	}
	p.metrics.RetrievalDocuments(len(retrieved))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var contexts []string
	if len(retrieved) > 0 {
		compressed, err := p.compressor.Compress(ctx, query, retrieved)
		if err != nil {
			return nil, err
		}
		contexts = make([]string, len(compressed))
		for i, c := range compressed {
			contexts[i] = c.CompressedContent
		}
	} else {
		p.logger.Printf("no documents to compress")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := p.generator.Generate(ctx, query, contexts)
	if err != nil {
		return nil, err
	}

	response, score, outcomes, err := p.correctionLoop(ctx, query, response, contexts, maxCorrections)
	if err != nil {
		return nil, err
	}

	p.metrics.ValidationScores(score.Groundedness, score.Relevance, score.Accuracy, score.Overall)
	p.metrics.Corrections(len(outcomes))
	status = "success"

	return &PipelineResult{
		Query:           query,
		Response:        response,
		ContextUsed:     contexts,
		ValidationScore: score,
		CorrectionsMade: len(outcomes),
		Corrections:     outcomes,
		RetrievalMetadata: RetrievalMetadata{
			DocumentsRetrieved:        len(retrieved),
			DocumentsAfterCompression: len(contexts),
			ExpansionUsed:             useExpansion,
		},
	}, nil
}

// correctionLoop validates the response and, while the score demands
// correction and the attempt budget lasts, asks for a rewrite. Each
// completed iteration is recorded as accepted or rejected; a correction is
// adopted only on a strictly better overall score, so equal or worse
// rewrites keep the prior response.
func (p *Pipeline) correctionLoop(ctx context.Context, query, response string, contexts []string, maxCorrections int) (string, ValidationScore, []CorrectionOutcome, error) {
	var outcomes []CorrectionOutcome

	score, err := p.validator.Validate(ctx, query, response, contexts)
	if err != nil {
		return "", ValidationScore{}, nil, err
	}

	for {
		if !score.NeedsCorrection {
			p.logger.Printf("validation passed (overall %.3f, confidence %s)", score.Overall, score.ConfidenceLevel)
			break
		}
		if len(outcomes) == maxCorrections {
			p.logger.Printf("correction budget exhausted after %d iterations (overall %.3f)", len(outcomes), score.Overall)
			break
		}
		if err := ctx.Err(); err != nil {
			return "", ValidationScore{}, nil, err
		}

		corrected, err := p.validator.Correct(ctx, query, response, contexts, score)
		if err != nil {
			return "", ValidationScore{}, nil, err
		}
		newScore, err := p.validator.Validate(ctx, query, corrected, contexts)
		if err != nil {
			return "", ValidationScore{}, nil, err
		}

		outcome := CorrectionOutcome{Before: score.Overall, After: newScore.Overall}
		if newScore.Overall > score.Overall {
			outcome.Accepted = true
			response = corrected
			score = newScore
			p.logger.Printf("correction applied (improvement %.3f)", outcome.After-outcome.Before)
		} else {
			p.logger.Printf("correction rejected (quality diff %.3f)", outcome.After-outcome.Before)
		}
		outcomes = append(outcomes, outcome)
	}

	return response, score, outcomes, nil
}

// Ingest writes already-embedded chunks into the vector store, creating
// the collection on first use.
func (p *Pipeline) Ingest(ctx context.Context, chunks []DocumentChunk, embeddings [][]float32) error {
	return p.retriever.AddDocuments(ctx, chunks, embeddings)
}
