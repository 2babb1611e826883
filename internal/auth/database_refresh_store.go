package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseRefreshTokenStore persists one refresh token per user using GORM.
// Rotation is a single upsert keyed on the user id, so the previous value is
// overwritten atomically by the database.
type DatabaseRefreshTokenStore struct {
	db          *gorm.DB
	driverLabel string
}

type refreshTokenRecord struct {
	UserID      int64  `gorm:"column:user_id;primaryKey"`
	Token       string `gorm:"column:token;uniqueIndex;not null"`
	UpdatedUnix int64  `gorm:"column:updated_unix;not null"`
}

func (refreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

// NewDatabaseRefreshTokenStore migrates the refresh token table and returns
// the store. The driver label is only used in error codes and logs.
func NewDatabaseRefreshTokenStore(ctx context.Context, db *gorm.DB, driverLabel string) (*DatabaseRefreshTokenStore, error) {
	if db == nil {
		return nil, errors.New("refresh_store.open: nil database handle")
	}
	if migrateErr := db.WithContext(ctx).AutoMigrate(&refreshTokenRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("refresh_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseRefreshTokenStore{
		db:          db,
		driverLabel: driverLabel,
	}, nil
}

// Driver exposes the selected database driver label.
func (store *DatabaseRefreshTokenStore) Driver() string {
	return store.driverLabel
}

// FindByToken locates the refresh token by its value.
func (store *DatabaseRefreshTokenStore) FindByToken(ctx context.Context, tokenValue string) (RefreshToken, error) {
	if strings.TrimSpace(tokenValue) == "" {
		return RefreshToken{}, fmt.Errorf("refresh_store.find.%s: %w", store.driverLabel, ErrRefreshTokenEmpty)
	}
	var record refreshTokenRecord
	err := store.db.WithContext(ctx).Where("token = ?", tokenValue).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RefreshToken{}, fmt.Errorf("refresh_store.find.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
		}
		return RefreshToken{}, fmt.Errorf("refresh_store.find.%s: %w", store.driverLabel, err)
	}
	return RefreshToken{UserID: record.UserID, Token: record.Token}, nil
}

// Upsert writes the user's current refresh token, overwriting any prior row.
func (store *DatabaseRefreshTokenStore) Upsert(ctx context.Context, userID int64, tokenValue string) error {
	if strings.TrimSpace(tokenValue) == "" {
		return fmt.Errorf("refresh_store.upsert.%s: %w", store.driverLabel, ErrRefreshTokenEmpty)
	}
	record := refreshTokenRecord{
		UserID:      userID,
		Token:       tokenValue,
		UpdatedUnix: time.Now().UTC().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_unix"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("refresh_store.upsert.%s: %w", store.driverLabel, err)
	}
	return nil
}
