package blog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smoroden/quillpost/internal/auth"
)

type articleRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// MountArticleRoutes registers the article CRUD endpoints. The router group
// is expected to already enforce authentication.
func MountArticleRoutes(router gin.IRouter, service *Service, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET("/articles", func(contextGin *gin.Context) {
		articles, listErr := service.List(contextGin)
		if listErr != nil {
			logger.Error("article list failed",
				zap.String("code", "blog.api.list"),
				zap.Error(listErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusOK, articles)
	})

	router.GET("/articles/:id", func(contextGin *gin.Context) {
		articleID, ok := parseArticleID(contextGin)
		if !ok {
			return
		}
		article, getErr := service.Get(contextGin, articleID)
		if getErr != nil {
			respondServiceError(contextGin, logger, "blog.api.get", getErr)
			return
		}
		contextGin.JSON(http.StatusOK, article)
	})

	router.POST("/articles", func(contextGin *gin.Context) {
		var inbound articleRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.Title) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		principal, _ := auth.CurrentPrincipal(contextGin)
		article, createErr := service.Create(contextGin, inbound.Title, inbound.Content, principal.Email)
		if createErr != nil {
			respondServiceError(contextGin, logger, "blog.api.create", createErr)
			return
		}
		contextGin.JSON(http.StatusCreated, article)
	})

	router.PUT("/articles/:id", func(contextGin *gin.Context) {
		articleID, ok := parseArticleID(contextGin)
		if !ok {
			return
		}
		var inbound articleRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		article, updateErr := service.Update(contextGin, articleID, inbound.Title, inbound.Content)
		if updateErr != nil {
			respondServiceError(contextGin, logger, "blog.api.update", updateErr)
			return
		}
		contextGin.JSON(http.StatusOK, article)
	})

	router.DELETE("/articles/:id", func(contextGin *gin.Context) {
		articleID, ok := parseArticleID(contextGin)
		if !ok {
			return
		}
		if deleteErr := service.Delete(contextGin, articleID); deleteErr != nil {
			respondServiceError(contextGin, logger, "blog.api.delete", deleteErr)
			return
		}
		contextGin.Status(http.StatusOK)
	})
}

func parseArticleID(contextGin *gin.Context) (int64, bool) {
	articleID, parseErr := strconv.ParseInt(contextGin.Param("id"), 10, 64)
	if parseErr != nil || articleID <= 0 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_article_id"})
		return 0, false
	}
	return articleID, true
}

func respondServiceError(contextGin *gin.Context, logger *zap.Logger, code string, err error) {
	switch {
	case errors.Is(err, ErrArticleNotFound):
		contextGin.AbortWithStatus(http.StatusNotFound)
	case errors.Is(err, ErrEmptyTitle):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "empty_title"})
	default:
		logger.Error("article operation failed",
			zap.String("code", code),
			zap.Error(err))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
	}
}
