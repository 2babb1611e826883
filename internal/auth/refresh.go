package auth

import (
	"context"
	"errors"
)

// RefreshToken is the durable record of a user's current refresh credential.
type RefreshToken struct {
	UserID int64
	Token  string
}

// Sentinel errors exposed by refresh token stores.
var (
	// ErrRefreshTokenNotFound indicates no stored refresh token matched the
	// provided value. The refresh endpoint uses it to distinguish "denied"
	// from a backend failure.
	ErrRefreshTokenNotFound = errors.New("refresh_store.not_found")
	// ErrRefreshTokenEmpty indicates an empty token value was supplied.
	ErrRefreshTokenEmpty = errors.New("refresh_store.empty_token")
)

// RefreshTokenStore maps a user to the single currently valid refresh token.
// Upsert overwrites any prior value for the user, so at most one refresh
// token per user validates at any time. Upsert must be atomic with respect to
// concurrent calls for the same user id; last-writer-wins is acceptable.
type RefreshTokenStore interface {
	FindByToken(ctx context.Context, tokenValue string) (RefreshToken, error)
	Upsert(ctx context.Context, userID int64, tokenValue string) error
}
