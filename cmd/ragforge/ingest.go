package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragforge/ragforge/config"
	"github.com/ragforge/ragforge/internal/ingest"
	"github.com/ragforge/ragforge/internal/provider"
	"github.com/ragforge/ragforge/internal/rag"
	"github.com/ragforge/ragforge/internal/store"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Chunk, embed and store documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := cmd.Context()
			logger := log.New(os.Stderr, "[INGEST] ", log.LstdFlags)

			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.Open(ctx, dsn, cfg.Retrieval.Collection)
			if err != nil {
				return err
			}

			llm := provider.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.Embedding.Model, cfg.LLM.MaxTokens, cfg.LLM.Timeout)
			processor := ingest.NewProcessor()
			chunker := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
			retriever := rag.NewRetriever(st, nil, logger)

			for _, path := range args {
				if err := ingestFile(ctx, path, processor, chunker, llm, retriever, logger); err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}

func ingestFile(ctx context.Context, path string, processor *ingest.Processor, chunker *ingest.Chunker, embedder rag.Embedder, retriever *rag.Retriever, logger *log.Logger) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := processor.Process(content, filepath.Base(path))
	if err != nil {
		return err
	}
	chunks := chunker.Chunk(doc)
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	embeddings, err := embedder.Encode(ctx, texts)
	if err != nil {
		return err
	}
	if err := retriever.AddDocuments(ctx, chunks, embeddings); err != nil {
		return err
	}
	logger.Printf("%s: %d chunks stored", path, len(chunks))
	return nil
}
