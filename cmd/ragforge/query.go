package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragforge/ragforge/config"
	"github.com/ragforge/ragforge/internal/provider"
	"github.com/ragforge/ragforge/internal/rag"
	"github.com/ragforge/ragforge/internal/rerank"
	"github.com/ragforge/ragforge/internal/store"
)

func queryCMD() *cobra.Command {
	var cfgPath string
	var useHyde bool
	var maxCorrections int
	var asJSON bool

	var cmd = &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question against the knowledge store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := cmd.Context()

			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.Open(ctx, dsn, cfg.Retrieval.Collection)
			if err != nil {
				return err
			}

			llm := provider.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.Embedding.Model, cfg.LLM.MaxTokens, cfg.LLM.Timeout)
			var reranker rag.Reranker
			if cfg.Rerank.Mode == "http" {
				reranker = rerank.NewHTTPReranker(cfg.Rerank.URL, cfg.Rerank.Timeout)
			} else {
				reranker = rerank.NewLLMReranker(llm, cfg.LLM.PreprocessingModel)
			}

			pipeline := rag.NewPipeline(rag.PipelineOptions{
				LLM:                llm,
				Embedder:           llm,
				Store:              st,
				Reranker:           reranker,
				MainModel:          cfg.LLM.MainModel,
				PreprocessingModel: cfg.LLM.PreprocessingModel,
				RetrievalK:         cfg.Retrieval.K,
				RerankK:            cfg.Retrieval.RerankK,
				Logger:             log.New(os.Stderr, "[PIPELINE] ", log.LstdFlags),
			})

			result, err := pipeline.ProcessQuery(ctx, strings.Join(args, " "), useHyde, maxCorrections)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			fmt.Println(result.Response)
			fmt.Fprintf(os.Stderr, "\noverall quality: %.2f (%s), corrections: %d, documents: %d\n",
				result.ValidationScore.Overall,
				result.ValidationScore.ConfidenceLevel,
				result.CorrectionsMade,
				result.RetrievalMetadata.DocumentsRetrieved)
			return nil
		},
	}
	cmd.Flags().BoolVar(&useHyde, "hyde", true, "expand the query with a hypothetical document")
	cmd.Flags().IntVar(&maxCorrections, "max-corrections", 2, "maximum self-correction iterations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
