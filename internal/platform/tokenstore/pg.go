package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the PG store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps tokens in the portal_tokens table, for portal servers that
// run on more than one host.
type PGStore struct {
	db Querier
}

// NewPGStore creates a Postgres-backed store.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, key string) (string, error) {
	var tok string
	err := s.db.QueryRow(ctx, `SELECT token FROM portal_tokens WHERE key = $1`, key).Scan(&tok)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get token %s: %w", key, err)
	}
	return tok, nil
}

func (s *PGStore) Set(ctx context.Context, key, token string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO portal_tokens (key, token, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()`,
		key, token)
	if err != nil {
		return fmt.Errorf("set token %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM portal_tokens WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete token %s: %w", key, err)
	}
	return nil
}
