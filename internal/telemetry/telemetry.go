package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the service's prometheus instruments. Everything is
// registered on the supplied registerer so tests and pipeline runs never
// share mutable global state.
type Metrics struct {
	queriesTotal        *prometheus.CounterVec
	queryDuration       prometheus.Histogram
	validationScores    *prometheus.HistogramVec
	activeQueries       prometheus.Gauge
	correctionsTotal    prometheus.Counter
	documentsUploaded   *prometheus.CounterVec
	documentChunks      prometheus.Counter
	embeddingsGenerated prometheus.Counter
	retrievalDocuments  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_queries_total",
			Help: "Total number of RAG queries processed",
		}, []string{"status"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_query_duration_seconds",
			Help:    "Time spent processing RAG queries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		validationScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rag_validation_scores",
			Help:    "Distribution of validation scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"score_type"}),
		activeQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rag_active_queries",
			Help: "Number of queries currently being processed",
		}),
		correctionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_corrections_total",
			Help: "Total number of self-correction iterations",
		}),
		documentsUploaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_documents_uploaded_total",
			Help: "Total number of documents uploaded",
		}, []string{"status"}),
		documentChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_document_chunks_total",
			Help: "Total number of chunks created from documents",
		}),
		embeddingsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_embeddings_generated_total",
			Help: "Total number of embeddings generated",
		}),
		retrievalDocuments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_retrieval_documents_found",
			Help:    "Number of documents found per retrieval",
			Buckets: prometheus.LinearBuckets(0, 2, 11),
		}),
	}
	reg.MustRegister(
		m.queriesTotal,
		m.queryDuration,
		m.validationScores,
		m.activeQueries,
		m.correctionsTotal,
		m.documentsUploaded,
		m.documentChunks,
		m.embeddingsGenerated,
		m.retrievalDocuments,
	)
	return m
}

func (m *Metrics) QueryStarted() {
	m.activeQueries.Inc()
}

func (m *Metrics) QueryFinished(seconds float64, status string) {
	m.activeQueries.Dec()
	m.queriesTotal.WithLabelValues(status).Inc()
	m.queryDuration.Observe(seconds)
}

func (m *Metrics) ValidationScores(groundedness, relevance, accuracy, overall float64) {
	m.validationScores.WithLabelValues("groundedness").Observe(groundedness)
	m.validationScores.WithLabelValues("relevance").Observe(relevance)
	m.validationScores.WithLabelValues("accuracy").Observe(accuracy)
	m.validationScores.WithLabelValues("overall").Observe(overall)
}

func (m *Metrics) Corrections(n int) {
	m.correctionsTotal.Add(float64(n))
}

func (m *Metrics) RetrievalDocuments(n int) {
	m.retrievalDocuments.Observe(float64(n))
}

func (m *Metrics) DocumentUploaded(status string, chunks, embeddings int) {
	m.documentsUploaded.WithLabelValues(status).Inc()
	if chunks > 0 {
		m.documentChunks.Add(float64(chunks))
	}
	if embeddings > 0 {
		m.embeddingsGenerated.Add(float64(embeddings))
	}
}
