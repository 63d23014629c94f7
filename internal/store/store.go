package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ragforge/ragforge/internal/rag"
)

// DefaultEmbeddingDimensions is the expected length of vectors stored in
// pgvector columns when nothing else is configured.
const DefaultEmbeddingDimensions = 1536

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store keeps embedded document chunks in a pgvector-enabled Postgres
// table. The collection table is created lazily on first ingestion, sized
// to the embedding dimensionality.
type Store struct {
	DB         *sql.DB
	collection string
}

// New wraps an open database handle. The collection name becomes a table
// name and must be a plain SQL identifier.
func New(db *sql.DB, collection string) (*Store, error) {
	if !identifierPattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name: %q", collection)
	}
	return &Store{DB: db, collection: collection}, nil
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn, collection string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db, collection)
}

// Exists reports whether the collection table has been created yet. A
// missing table is the normal state of an empty knowledge store.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	var regclass sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT to_regclass($1)`, s.collection).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("check collection: %w", err)
	}
	return regclass.Valid, nil
}

// EnsureCollection creates the collection table and its cosine index if
// absent, sized to the given embedding dimensionality.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimensions
	}
	_, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id UUID PRIMARY KEY,
  content TEXT NOT NULL,
  embedding vector(%d) NOT NULL,
  payload JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`, s.collection, dimension))
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops);`,
		s.collection, s.collection))
	if err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	return nil
}

// Upsert writes points in one transaction, replacing rows on ID conflict.
func (s *Store) Upsert(ctx context.Context, points []rag.Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, content, embedding, payload, created_at)
VALUES ($1,$2,$3::vector,$4,NOW())
ON CONFLICT (id) DO UPDATE SET
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding,
  payload = EXCLUDED.payload,
  created_at = NOW();`, s.collection))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, point := range points {
		if point.ID == "" {
			err = fmt.Errorf("point id required")
			return err
		}
		var vectorLiteral string
		vectorLiteral, err = encodeVectorLiteral(point.Vector)
		if err != nil {
			return err
		}
		var payloadBytes []byte
		payloadBytes, err = json.Marshal(point.Payload)
		if err != nil {
			err = fmt.Errorf("marshal payload: %w", err)
			return err
		}
		if _, err = stmt.ExecContext(ctx, point.ID, point.Payload.Content, vectorLiteral, payloadBytes); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the k nearest chunks by cosine distance, scored as
// similarity (1 - distance) in descending order.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]rag.SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	vectorLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
SELECT id, payload, 1 - (embedding <=> $1::vector) AS score
FROM %s
ORDER BY embedding <=> $1::vector
LIMIT $2`, s.collection), vectorLiteral, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []rag.SearchHit
	for rows.Next() {
		var (
			hit          rag.SearchHit
			payloadBytes []byte
		)
		if err := rows.Scan(&hit.ID, &payloadBytes, &hit.Score); err != nil {
			return nil, err
		}
		if len(payloadBytes) > 0 {
			if err := json.Unmarshal(payloadBytes, &hit.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
