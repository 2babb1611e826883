// Package authpg provides a PostgreSQL refresh token store over a pgx pool,
// for deployments that want the auth hot path off the ORM.
package authpg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smoroden/quillpost/internal/auth"
)

// PostgresRefreshTokenStore persists one rotating refresh token per user.
type PostgresRefreshTokenStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRefreshTokenStore constructs a Postgres store.
func NewPostgresRefreshTokenStore(pool *pgxpool.Pool) *PostgresRefreshTokenStore {
	return &PostgresRefreshTokenStore{pool: pool}
}

// FindByToken locates the refresh token by its value.
func (store *PostgresRefreshTokenStore) FindByToken(ctx context.Context, tokenValue string) (auth.RefreshToken, error) {
	if strings.TrimSpace(tokenValue) == "" {
		return auth.RefreshToken{}, fmt.Errorf("refresh_store.find.postgres: %w", auth.ErrRefreshTokenEmpty)
	}
	var userID int64
	var token string
	row := store.pool.QueryRow(ctx, `
SELECT user_id, token
FROM refresh_tokens
WHERE token = $1
`, tokenValue)
	if scanErr := row.Scan(&userID, &token); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return auth.RefreshToken{}, fmt.Errorf("refresh_store.find.postgres: %w", auth.ErrRefreshTokenNotFound)
		}
		return auth.RefreshToken{}, fmt.Errorf("refresh_store.find.postgres: %w", scanErr)
	}
	return auth.RefreshToken{UserID: userID, Token: token}, nil
}

// Upsert replaces the user's refresh token in a single statement so rotation
// stays atomic per user id.
func (store *PostgresRefreshTokenStore) Upsert(ctx context.Context, userID int64, tokenValue string) error {
	if strings.TrimSpace(tokenValue) == "" {
		return fmt.Errorf("refresh_store.upsert.postgres: %w", auth.ErrRefreshTokenEmpty)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO refresh_tokens (user_id, token, updated_unix)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET token = EXCLUDED.token, updated_unix = EXCLUDED.updated_unix
`, userID, tokenValue, time.Now().UTC().Unix())
	if execErr != nil {
		return fmt.Errorf("refresh_store.upsert.postgres: %w", execErr)
	}
	return nil
}
