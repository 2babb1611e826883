// Package users persists application users resolved from provider logins.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/smoroden/quillpost/internal/auth"
)

// Sentinel errors exposed by the store.
var (
	ErrEmptyEmail   = errors.New("user_store.empty_email")
	ErrUserNotFound = errors.New("user_store.not_found")
)

type userRecord struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Email    string `gorm:"column:email;uniqueIndex;not null"`
	Nickname string `gorm:"column:nickname"`
}

func (userRecord) TableName() string {
	return "users"
}

// Store is a GORM-backed user store.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the users table and returns the store.
func NewStore(ctx context.Context, db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("user_store.open: nil database handle")
	}
	if migrateErr := db.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate: %w", migrateErr)
	}
	return &Store{db: db}, nil
}

// FindOrCreateByEmail resolves the local user for a provider identity,
// creating the record on first login.
func (store *Store) FindOrCreateByEmail(ctx context.Context, email string, nickname string) (auth.Principal, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return auth.Principal{}, fmt.Errorf("user_store.find_or_create: %w", ErrEmptyEmail)
	}

	var record userRecord
	findErr := store.db.WithContext(ctx).Where("email = ?", normalized).Take(&record).Error
	if findErr == nil {
		return auth.Principal{ID: record.ID, Email: record.Email}, nil
	}
	if !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return auth.Principal{}, fmt.Errorf("user_store.find_or_create: %w", findErr)
	}

	record = userRecord{Email: normalized, Nickname: nickname}
	if createErr := store.db.WithContext(ctx).Create(&record).Error; createErr != nil {
		return auth.Principal{}, fmt.Errorf("user_store.find_or_create: %w", createErr)
	}
	return auth.Principal{ID: record.ID, Email: record.Email}, nil
}

// FindByID returns the principal for a stored user id.
func (store *Store) FindByID(ctx context.Context, userID int64) (auth.Principal, error) {
	var record userRecord
	findErr := store.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return auth.Principal{}, fmt.Errorf("user_store.find_by_id: %w", ErrUserNotFound)
		}
		return auth.Principal{}, fmt.Errorf("user_store.find_by_id: %w", findErr)
	}
	return auth.Principal{ID: record.ID, Email: record.Email}, nil
}
