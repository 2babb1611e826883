package blog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/smoroden/quillpost/internal/storage"
)

func openService(t *testing.T) *Service {
	t.Helper()
	gormDB, _, openErr := storage.Open(fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", t.Name()))
	if openErr != nil {
		t.Fatalf("open database: %v", openErr)
	}
	service, serviceErr := NewService(context.Background(), gormDB)
	if serviceErr != nil {
		t.Fatalf("create service: %v", serviceErr)
	}
	return service
}

func TestCreateAndGet(t *testing.T) {
	service := openService(t)
	ctx := context.Background()

	created, createErr := service.Create(ctx, "First Post", "Hello.", "a@b.com")
	if createErr != nil {
		t.Fatalf("create error: %v", createErr)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned article id")
	}
	if created.CreatedUnix == 0 || created.UpdatedUnix != created.CreatedUnix {
		t.Fatalf("unexpected timestamps: %+v", created)
	}

	fetched, getErr := service.Get(ctx, created.ID)
	if getErr != nil {
		t.Fatalf("get error: %v", getErr)
	}
	if fetched.Title != "First Post" || fetched.Author != "a@b.com" {
		t.Fatalf("unexpected article: %+v", fetched)
	}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	service := openService(t)
	if _, createErr := service.Create(context.Background(), "   ", "body", "a@b.com"); !errors.Is(createErr, ErrEmptyTitle) {
		t.Fatalf("expected empty-title error, got %v", createErr)
	}
}

func TestListNewestFirst(t *testing.T) {
	service := openService(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		if _, createErr := service.Create(ctx, title, "", "a@b.com"); createErr != nil {
			t.Fatalf("create error: %v", createErr)
		}
	}

	articles, listErr := service.List(ctx)
	if listErr != nil {
		t.Fatalf("list error: %v", listErr)
	}
	if len(articles) != 3 {
		t.Fatalf("expected three articles, got %d", len(articles))
	}
	if articles[0].Title != "three" || articles[2].Title != "one" {
		t.Fatalf("expected newest first, got %q .. %q", articles[0].Title, articles[2].Title)
	}
}

func TestUpdateRewritesArticle(t *testing.T) {
	service := openService(t)
	ctx := context.Background()

	created, createErr := service.Create(ctx, "draft", "old body", "a@b.com")
	if createErr != nil {
		t.Fatalf("create error: %v", createErr)
	}

	updated, updateErr := service.Update(ctx, created.ID, "published", "new body")
	if updateErr != nil {
		t.Fatalf("update error: %v", updateErr)
	}
	if updated.Title != "published" || updated.Content != "new body" {
		t.Fatalf("unexpected article after update: %+v", updated)
	}
	if updated.Author != "a@b.com" {
		t.Fatal("update must not change the author")
	}

	if _, updateErr := service.Update(ctx, created.ID+100, "title", "body"); !errors.Is(updateErr, ErrArticleNotFound) {
		t.Fatalf("expected not-found, got %v", updateErr)
	}
	if _, updateErr := service.Update(ctx, created.ID, "", "body"); !errors.Is(updateErr, ErrEmptyTitle) {
		t.Fatalf("expected empty-title error, got %v", updateErr)
	}
}

func TestDelete(t *testing.T) {
	service := openService(t)
	ctx := context.Background()

	created, createErr := service.Create(ctx, "ephemeral", "", "a@b.com")
	if createErr != nil {
		t.Fatalf("create error: %v", createErr)
	}

	if deleteErr := service.Delete(ctx, created.ID); deleteErr != nil {
		t.Fatalf("delete error: %v", deleteErr)
	}
	if _, getErr := service.Get(ctx, created.ID); !errors.Is(getErr, ErrArticleNotFound) {
		t.Fatalf("expected article gone, got %v", getErr)
	}
	if deleteErr := service.Delete(ctx, created.ID); !errors.Is(deleteErr, ErrArticleNotFound) {
		t.Fatalf("expected not-found on second delete, got %v", deleteErr)
	}
}
