package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryRefreshTokenStore is an in-memory store intended for tests and dev.
type MemoryRefreshTokenStore struct {
	mutex   sync.Mutex
	byUser  map[int64]string
	byToken map[string]int64
}

// NewMemoryRefreshTokenStore creates an empty in-memory store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		byUser:  make(map[int64]string),
		byToken: make(map[string]int64),
	}
}

// FindByToken looks up the refresh token by its value.
func (store *MemoryRefreshTokenStore) FindByToken(ctx context.Context, tokenValue string) (RefreshToken, error) {
	if strings.TrimSpace(tokenValue) == "" {
		return RefreshToken{}, fmt.Errorf("refresh_store.find: %w", ErrRefreshTokenEmpty)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	userID, ok := store.byToken[tokenValue]
	if !ok {
		return RefreshToken{}, fmt.Errorf("refresh_store.find: %w", ErrRefreshTokenNotFound)
	}
	return RefreshToken{UserID: userID, Token: tokenValue}, nil
}

// Upsert replaces the user's refresh token; the previous value stops
// validating immediately.
func (store *MemoryRefreshTokenStore) Upsert(ctx context.Context, userID int64, tokenValue string) error {
	if strings.TrimSpace(tokenValue) == "" {
		return fmt.Errorf("refresh_store.upsert: %w", ErrRefreshTokenEmpty)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if previous, ok := store.byUser[userID]; ok {
		delete(store.byToken, previous)
	}
	store.byUser[userID] = tokenValue
	store.byToken[tokenValue] = userID
	return nil
}
