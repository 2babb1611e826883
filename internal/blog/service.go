// Package blog implements the article domain served behind the
// authentication filter.
package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Sentinel errors exposed by the service.
var (
	ErrArticleNotFound = errors.New("blog.article_not_found")
	ErrEmptyTitle      = errors.New("blog.empty_title")
)

// Article is a published post.
type Article struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title       string `gorm:"column:title;not null" json:"title"`
	Content     string `gorm:"column:content;not null" json:"content"`
	Author      string `gorm:"column:author" json:"author"`
	CreatedUnix int64  `gorm:"column:created_unix;not null" json:"created_at"`
	UpdatedUnix int64  `gorm:"column:updated_unix;not null" json:"updated_at"`
}

// TableName maps the model onto the articles table.
func (Article) TableName() string {
	return "articles"
}

// Service provides article CRUD over GORM.
type Service struct {
	db *gorm.DB
}

// NewService migrates the articles table and returns the service.
func NewService(ctx context.Context, db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("blog.open: nil database handle")
	}
	if migrateErr := db.WithContext(ctx).AutoMigrate(&Article{}); migrateErr != nil {
		return nil, fmt.Errorf("blog.migrate: %w", migrateErr)
	}
	return &Service{db: db}, nil
}

// List returns all articles, newest first.
func (service *Service) List(ctx context.Context) ([]Article, error) {
	var articles []Article
	if err := service.db.WithContext(ctx).Order("id desc").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("blog.list: %w", err)
	}
	return articles, nil
}

// Get returns a single article by id.
func (service *Service) Get(ctx context.Context, articleID int64) (Article, error) {
	var article Article
	err := service.db.WithContext(ctx).Where("id = ?", articleID).Take(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Article{}, fmt.Errorf("blog.get: %w", ErrArticleNotFound)
		}
		return Article{}, fmt.Errorf("blog.get: %w", err)
	}
	return article, nil
}

// Create stores a new article attributed to the author.
func (service *Service) Create(ctx context.Context, title string, content string, author string) (Article, error) {
	if strings.TrimSpace(title) == "" {
		return Article{}, fmt.Errorf("blog.create: %w", ErrEmptyTitle)
	}
	now := time.Now().UTC().Unix()
	article := Article{
		Title:       title,
		Content:     content,
		Author:      author,
		CreatedUnix: now,
		UpdatedUnix: now,
	}
	if err := service.db.WithContext(ctx).Create(&article).Error; err != nil {
		return Article{}, fmt.Errorf("blog.create: %w", err)
	}
	return article, nil
}

// Update rewrites an article's title and content.
func (service *Service) Update(ctx context.Context, articleID int64, title string, content string) (Article, error) {
	if strings.TrimSpace(title) == "" {
		return Article{}, fmt.Errorf("blog.update: %w", ErrEmptyTitle)
	}
	article, getErr := service.Get(ctx, articleID)
	if getErr != nil {
		return Article{}, getErr
	}
	article.Title = title
	article.Content = content
	article.UpdatedUnix = time.Now().UTC().Unix()
	if err := service.db.WithContext(ctx).Save(&article).Error; err != nil {
		return Article{}, fmt.Errorf("blog.update: %w", err)
	}
	return article, nil
}

// Delete removes an article by id.
func (service *Service) Delete(ctx context.Context, articleID int64) error {
	result := service.db.WithContext(ctx).Where("id = ?", articleID).Delete(&Article{})
	if result.Error != nil {
		return fmt.Errorf("blog.delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("blog.delete: %w", ErrArticleNotFound)
	}
	return nil
}
