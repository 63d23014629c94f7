package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateUser inserts a new API user with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) error {
	if email == "" {
		return fmt.Errorf("email required")
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO users (id, email, password_hash, created_at)
VALUES ($1,$2,$3,NOW())`, uuid.NewString(), email, passwordHash)
	return err
}

// GetUserByEmail returns the user's id and stored password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.DB.QueryRowContext(ctx, `
SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}
