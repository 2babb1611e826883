package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MountAuthRoutes registers the login handshake endpoints, the refresh
// endpoint, and logout.
func MountAuthRoutes(router gin.IRouter, configuration Config, codec *Codec, refreshTokens RefreshTokenStore, handshake *LoginHandshake, logger *zap.Logger, metrics MetricsRecorder) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	router.GET("/oauth2/authorize", handshake.Begin)
	router.GET("/oauth2/callback", handshake.Callback)

	router.POST("/api/token", func(contextGin *gin.Context) {
		refreshCookie, cookieErr := contextGin.Request.Cookie(configuration.RefreshCookieName)
		if cookieErr != nil || refreshCookie == nil || strings.TrimSpace(refreshCookie.Value) == "" {
			metrics.Increment(MetricRefreshDenied)
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		refreshToken := refreshCookie.Value

		if !codec.Verify(refreshToken) {
			metrics.Increment(MetricRefreshDenied)
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		stored, findErr := refreshTokens.FindByToken(contextGin, refreshToken)
		if findErr != nil {
			if errors.Is(findErr, ErrRefreshTokenNotFound) || errors.Is(findErr, ErrRefreshTokenEmpty) {
				metrics.Increment(MetricRefreshDenied)
				contextGin.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			logger.Error("refresh store lookup failed",
				zap.String("code", "refresh.lookup"),
				zap.Error(findErr))
			metrics.Increment(MetricRefreshFailure)
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		principal, resolveErr := codec.AuthenticationFor(refreshToken)
		if resolveErr != nil || principal.ID != stored.UserID {
			metrics.Increment(MetricRefreshDenied)
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		accessToken, accessErr := codec.Issue(principal, configuration.AccessTokenTTL)
		if accessErr != nil {
			logger.Error("access token issuance failed",
				zap.String("code", "refresh.access_token"),
				zap.Error(accessErr))
			metrics.Increment(MetricRefreshFailure)
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		rotatedToken, rotateErr := codec.Issue(principal, configuration.RefreshTokenTTL)
		if rotateErr != nil {
			logger.Error("refresh token issuance failed",
				zap.String("code", "refresh.refresh_token"),
				zap.Error(rotateErr))
			metrics.Increment(MetricRefreshFailure)
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if upsertErr := refreshTokens.Upsert(contextGin, principal.ID, rotatedToken); upsertErr != nil {
			logger.Error("refresh store rotation failed",
				zap.String("code", "refresh.upsert"),
				zap.Error(upsertErr))
			metrics.Increment(MetricRefreshFailure)
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		writeRefreshCookie(contextGin, configuration, rotatedToken)
		metrics.Increment(MetricRefreshSuccess)
		contextGin.JSON(http.StatusCreated, gin.H{"token": accessToken})
	})

	router.POST("/auth/logout", func(contextGin *gin.Context) {
		// Logout clears cookies only; the stored refresh token stays valid
		// until its next rotation.
		clearRefreshCookie(contextGin, configuration)
		metrics.Increment(MetricLogout)
		contextGin.Status(http.StatusNoContent)
	})
}
