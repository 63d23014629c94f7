package server

import "github.com/ragforge/ragforge/internal/rag"

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query          string `json:"query"`
	UseHyde        *bool  `json:"use_hyde,omitempty"`
	MaxCorrections *int   `json:"max_corrections,omitempty"`
}

// QueryResponse is the body of a successful query.
type QueryResponse struct {
	Query            string                `json:"query"`
	Response         string                `json:"response"`
	ProcessingTime   float64               `json:"processing_time"`
	ValidationScores rag.ValidationScore   `json:"validation_scores"`
	CorrectionsMade  int                   `json:"corrections_made"`
	Metadata         rag.RetrievalMetadata `json:"metadata"`
}

// UploadResponse reports the outcome of a document upload.
type UploadResponse struct {
	Filename            string `json:"filename"`
	ChunksCreated       int    `json:"chunks_created"`
	EmbeddingsGenerated int    `json:"embeddings_generated"`
	Status              string `json:"status"`
}

// StatsResponse is a lightweight performance snapshot.
type StatsResponse struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	QueriesProcessed  int64   `json:"queries_processed"`
	QueriesFailed     int64   `json:"queries_failed"`
	CorrectionsMade   int64   `json:"corrections_made"`
	DocumentsIngested int64   `json:"documents_ingested"`
}

// AuthSignupRequest is the body of POST /api/auth/signup.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest is the body of POST /api/auth/login.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries the signed JWT.
type TokenResponse struct {
	Token string `json:"token"`
}

// HTTPError is the uniform error body.
type HTTPError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
