package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragforge/ragforge/config"
	"github.com/ragforge/ragforge/internal/embedding"
	"github.com/ragforge/ragforge/internal/ingest"
	"github.com/ragforge/ragforge/internal/provider"
	"github.com/ragforge/ragforge/internal/rag"
	"github.com/ragforge/ragforge/internal/rerank"
	"github.com/ragforge/ragforge/internal/store"
	"github.com/ragforge/ragforge/internal/telemetry"
)

// Run wires the full service from configuration and serves HTTP until the
// listener fails.
func Run(cfg *config.Config) error {
	ctx := context.Background()
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret not configured")
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("warning: migrations did not apply cleanly: %v", err)
	}

	st, err := store.Open(ctx, dsn, cfg.Retrieval.Collection)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	llm := provider.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.Embedding.Model, cfg.LLM.MaxTokens, cfg.LLM.Timeout)

	var embedder rag.Embedder = llm
	if cfg.Storage.Redis.Host != "" {
		redisClient, err := embedding.Conn(ctx, cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.General.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		cacheLogger := log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
		embedder = embedding.NewCachedProvider(llm, redisClient, cfg.Embedding.Model, cfg.Embedding.CacheTTL, cfg.Embedding.BatchSize, cacheLogger)
	}

	var reranker rag.Reranker
	if cfg.Rerank.Mode == "http" {
		reranker = rerank.NewHTTPReranker(cfg.Rerank.URL, cfg.Rerank.Timeout)
	} else {
		reranker = rerank.NewLLMReranker(llm, cfg.LLM.PreprocessingModel)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	pipeline := rag.NewPipeline(rag.PipelineOptions{
		LLM:                llm,
		Embedder:           embedder,
		Store:              st,
		Reranker:           reranker,
		MainModel:          cfg.LLM.MainModel,
		PreprocessingModel: cfg.LLM.PreprocessingModel,
		RetrievalK:         cfg.Retrieval.K,
		RerankK:            cfg.Retrieval.RerankK,
		Metrics:            metrics,
		Logger:             log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		if err := st.DB.PingContext(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	secret := []byte(cfg.Server.JWTSecret)
	auth := &AuthHandler{Users: st, Secret: secret}
	auth.Register(e.Group("/api/auth"))

	handlers := NewHandlers(
		pipeline,
		embedder,
		ingest.NewProcessor(),
		ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		metrics,
		baseLogger,
	)
	api := e.Group("/api", AuthMiddleware(secret))
	handlers.Register(api)

	baseLogger.Printf("listening on %s", cfg.Server.Address)
	return e.Start(cfg.Server.Address)
}
