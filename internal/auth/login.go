package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProviderIdentity is the verified identity returned by the external OAuth2
// provider at the end of the handshake.
type ProviderIdentity struct {
	Email string
	Name  string
}

// UserStore resolves or creates local users for provider identities.
type UserStore interface {
	FindOrCreateByEmail(ctx context.Context, email string, nickname string) (Principal, error)
}

// LoginCompleter runs once the provider has confirmed a login: it resolves
// the local user, issues the access and refresh tokens, rotates the refresh
// store, sets cookies, and redirects to the stored target.
type LoginCompleter struct {
	codec         *Codec
	users         UserStore
	refreshTokens RefreshTokenStore
	carrier       *StateCarrier
	configuration Config
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// NewLoginCompleter wires the completion handler's collaborators.
func NewLoginCompleter(codec *Codec, users UserStore, refreshTokens RefreshTokenStore, carrier *StateCarrier, configuration Config, logger *zap.Logger, metrics MetricsRecorder) *LoginCompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &LoginCompleter{
		codec:         codec,
		users:         users,
		refreshTokens: refreshTokens,
		carrier:       carrier,
		configuration: configuration,
		logger:        logger,
		metrics:       metrics,
	}
}

// Complete finishes a provider login. The transient authorization-state
// cookies are cleared up front, before any response is written, so no stale
// state leaks into a future attempt regardless of outcome.
func (completer *LoginCompleter) Complete(contextGin *gin.Context, identity ProviderIdentity) {
	redirectTarget := completer.carrier.RedirectTarget(contextGin.Request)
	completer.carrier.Remove(contextGin.Writer)

	principal, resolveErr := completer.users.FindOrCreateByEmail(contextGin, identity.Email, identity.Name)
	if resolveErr != nil {
		completer.logger.Error("user resolution failed during login completion",
			zap.String("code", "login.complete.user_resolution"),
			zap.Error(resolveErr))
		completer.metrics.Increment(MetricLoginFailure)
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	accessToken, accessErr := completer.codec.Issue(principal, completer.configuration.AccessTokenTTL)
	if accessErr != nil {
		completer.logger.Error("access token issuance failed",
			zap.String("code", "login.complete.access_token"),
			zap.Error(accessErr))
		completer.metrics.Increment(MetricLoginFailure)
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	refreshToken, refreshErr := completer.codec.Issue(principal, completer.configuration.RefreshTokenTTL)
	if refreshErr != nil {
		completer.logger.Error("refresh token issuance failed",
			zap.String("code", "login.complete.refresh_token"),
			zap.Error(refreshErr))
		completer.metrics.Increment(MetricLoginFailure)
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	if upsertErr := completer.refreshTokens.Upsert(contextGin, principal.ID, refreshToken); upsertErr != nil {
		completer.logger.Error("refresh store upsert failed",
			zap.String("code", "login.complete.refresh_upsert"),
			zap.Error(upsertErr))
		completer.metrics.Increment(MetricLoginFailure)
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	writeRefreshCookie(contextGin, completer.configuration, refreshToken)

	if redirectTarget == "" {
		redirectTarget = completer.configuration.FallbackRedirectPath
	}
	completer.metrics.Increment(MetricLoginSuccess)
	contextGin.Redirect(http.StatusFound, appendTokenQuery(redirectTarget, accessToken))
}

// appendTokenQuery delivers the access token on the redirect target. The
// refresh token travels only in its HttpOnly cookie.
func appendTokenQuery(target string, accessToken string) string {
	parsed, parseErr := url.Parse(target)
	if parseErr != nil {
		return target
	}
	query := parsed.Query()
	query.Set("token", accessToken)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func writeRefreshCookie(contextGin *gin.Context, configuration Config, refreshToken string) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.RefreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   int(configuration.RefreshTokenTTL.Seconds()),
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearRefreshCookie(contextGin *gin.Context, configuration Config) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.RefreshCookieName,
		Value:    "",
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}
