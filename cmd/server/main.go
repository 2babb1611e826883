package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/smoroden/quillpost/internal/auth"
	"github.com/smoroden/quillpost/internal/authpg"
	"github.com/smoroden/quillpost/internal/blog"
	"github.com/smoroden/quillpost/internal/storage"
	"github.com/smoroden/quillpost/internal/users"
	"github.com/smoroden/quillpost/internal/web"
	webassets "github.com/smoroden/quillpost/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildIdentityExchanger = func(oauthConfig *oauth2.Config) auth.IdentityExchanger {
	return auth.NewGoogleExchanger(oauthConfig)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "quillpost",
		Short:   "Blog service with stateless JWT authentication, OAuth2 login, and rotating refresh tokens",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access and refresh tokens")
	rootCmd.Flags().Duration("access_token_ttl", time.Hour, "Access token TTL")
	rootCmd.Flags().Duration("refresh_token_ttl", 14*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Duration("auth_state_ttl", 5*time.Minute, "Lifetime of the OAuth2 authorization-state cookie")
	rootCmd.Flags().String("fallback_redirect", "/articles", "Post-login redirect when no target cookie is present")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth Client ID")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth Client Secret")
	rootCmd.Flags().String("oauth_redirect_url", "", "Externally reachable URL of /oauth2/callback")
	rootCmd.Flags().String("database_url", "", "Database URL (postgres:// or sqlite://; empty for in-memory)")
	rootCmd.Flags().Bool("pgx_refresh_store", false, "Serve refresh tokens through a dedicated pgx pool (postgres only)")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("cookie_domain", rootCmd.Flags().Lookup("cookie_domain"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("access_token_ttl", rootCmd.Flags().Lookup("access_token_ttl"))
	_ = viper.BindPFlag("refresh_token_ttl", rootCmd.Flags().Lookup("refresh_token_ttl"))
	_ = viper.BindPFlag("auth_state_ttl", rootCmd.Flags().Lookup("auth_state_ttl"))
	_ = viper.BindPFlag("fallback_redirect", rootCmd.Flags().Lookup("fallback_redirect"))
	_ = viper.BindPFlag("google_client_id", rootCmd.Flags().Lookup("google_client_id"))
	_ = viper.BindPFlag("google_client_secret", rootCmd.Flags().Lookup("google_client_secret"))
	_ = viper.BindPFlag("oauth_redirect_url", rootCmd.Flags().Lookup("oauth_redirect_url"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("pgx_refresh_store", rootCmd.Flags().Lookup("pgx_refresh_store"))
	_ = viper.BindPFlag("dev_insecure_http", rootCmd.Flags().Lookup("dev_insecure_http"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	refreshCookieName   = "refresh_token"
	authStateCookieName = "oauth_authorization_request"
	redirectCookieName  = "redirect_uri"
	tokenIssuer         = "quillpost"

	configCodeMissingJWTSigningKey     = "config.missing_jwt_signing_key"
	configCodeMissingGoogleClientID    = "config.missing_google_client_id"
	configCodeMissingGoogleSecret      = "config.missing_google_client_secret"
	configCodeMissingOAuthRedirectURL  = "config.missing_oauth_redirect_url"
	configCodeInvalidAccessTokenTTL    = "config.invalid_access_token_ttl"
	configCodeInvalidRefreshTokenTTL   = "config.invalid_refresh_token_ttl"
	configCodeUninitializedServerConf  = "config.uninitialized_server_config"
	configCodePgxStoreRequiresPostgres = "config.pgx_store_requires_postgres"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// ServerConfig groups the auth settings with the provider credentials the
// command wires into the handshake.
type ServerConfig struct {
	Auth               auth.Config
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectURL   string
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates the viper-bound settings.
func LoadServerConfig() (ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	googleClientID := viper.GetString("google_client_id")
	if googleClientID == "" {
		return ServerConfig{}, configError(configCodeMissingGoogleClientID, "google_client_id must be provided")
	}
	googleClientSecret := viper.GetString("google_client_secret")
	if googleClientSecret == "" {
		return ServerConfig{}, configError(configCodeMissingGoogleSecret, "google_client_secret must be provided")
	}
	oauthRedirectURL := viper.GetString("oauth_redirect_url")
	if oauthRedirectURL == "" {
		return ServerConfig{}, configError(configCodeMissingOAuthRedirectURL, "oauth_redirect_url must be provided")
	}

	accessTokenTTL := viper.GetDuration("access_token_ttl")
	if accessTokenTTL <= 0 {
		return ServerConfig{}, configError(configCodeInvalidAccessTokenTTL, "access_token_ttl must be greater than zero")
	}
	refreshTokenTTL := viper.GetDuration("refresh_token_ttl")
	if refreshTokenTTL <= 0 {
		return ServerConfig{}, configError(configCodeInvalidRefreshTokenTTL, "refresh_token_ttl must be greater than zero")
	}

	authStateTTL := 5 * time.Minute
	if configuredStateTTL := viper.GetDuration("auth_state_ttl"); configuredStateTTL > 0 {
		authStateTTL = configuredStateTTL
	}

	fallbackRedirect := viper.GetString("fallback_redirect")
	if fallbackRedirect == "" {
		fallbackRedirect = "/articles"
	}

	return ServerConfig{
		Auth: auth.Config{
			SigningKey:           []byte(jwtSigningKey),
			Issuer:               tokenIssuer,
			AccessTokenTTL:       accessTokenTTL,
			RefreshTokenTTL:      refreshTokenTTL,
			AuthStateMaxAge:      authStateTTL,
			FallbackRedirectPath: fallbackRedirect,
			CookieDomain:         viper.GetString("cookie_domain"),
			AuthStateCookieName:  authStateCookieName,
			RedirectCookieName:   redirectCookieName,
			RefreshCookieName:    refreshCookieName,
		},
		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		OAuthRedirectURL:   oauthRedirectURL,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	devInsecureHTTP := viper.GetBool("dev_insecure_http")
	databaseURL := viper.GetString("database_url")
	pgxRefreshStore := viper.GetBool("pgx_refresh_store")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	authConfig := serverConfig.Auth
	authConfig.AllowInsecureHTTP = devInsecureHTTP
	authConfig.SameSiteMode = http.SameSiteStrictMode
	if enableCORS {
		authConfig.SameSiteMode = http.SameSiteNoneMode
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	gormURL := databaseURL
	if gormURL == "" {
		gormURL = "sqlite://file::memory:?cache=shared"
	}
	gormDB, driverLabel, openErr := storage.Open(gormURL)
	if openErr != nil {
		return openErr
	}
	logger.Info("database connected", zap.String("driver", driverLabel))

	userStore, usersErr := users.NewStore(command.Context(), gormDB)
	if usersErr != nil {
		return usersErr
	}
	blogService, blogErr := blog.NewService(command.Context(), gormDB)
	if blogErr != nil {
		return blogErr
	}

	var refreshStore auth.RefreshTokenStore
	switch {
	case databaseURL == "":
		refreshStore = auth.NewMemoryRefreshTokenStore()
		logger.Info("using in-memory refresh token store")
	case pgxRefreshStore:
		if driverLabel != "postgres" {
			return configError(configCodePgxStoreRequiresPostgres, "pgx_refresh_store requires a postgres database_url")
		}
		pool, poolErr := authpg.BuildPool(command.Context(), databaseURL)
		if poolErr != nil {
			return poolErr
		}
		if schemaErr := authpg.EnsureSchema(command.Context(), pool); schemaErr != nil {
			return schemaErr
		}
		refreshStore = authpg.NewPostgresRefreshTokenStore(pool)
		logger.Info("using pgx refresh token store")
	default:
		persistentStore, storeErr := auth.NewDatabaseRefreshTokenStore(command.Context(), gormDB, driverLabel)
		if storeErr != nil {
			return storeErr
		}
		refreshStore = persistentStore
		logger.Info("using persistent refresh token store", zap.String("driver", persistentStore.Driver()))
	}

	clock := auth.NewSystemClock()
	codec := auth.NewCodec(authConfig.SigningKey, authConfig.Issuer, clock)
	carrier := auth.NewStateCarrier(authConfig)
	metricsRecorder := auth.NewCounterMetrics()

	completer := auth.NewLoginCompleter(codec, userStore, refreshStore, carrier, authConfig, logger, metricsRecorder)
	oauthConfig := auth.NewGoogleOAuthConfig(serverConfig.GoogleClientID, serverConfig.GoogleClientSecret, serverConfig.OAuthRedirectURL)
	handshake := auth.NewLoginHandshake(oauthConfig, buildIdentityExchanger(oauthConfig), carrier, completer, logger)

	router.Use(auth.TokenAuthentication(codec))

	auth.MountAuthRoutes(router, authConfig, codec, refreshStore, handshake, logger, metricsRecorder)

	router.GET("/login", func(contextGin *gin.Context) {
		web.ServeEmbeddedHTML(contextGin, webassets.FS, "login.html")
	})

	router.GET("/metrics", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, metricsRecorder.Snapshot())
	})

	protected := router.Group("/api")
	protected.Use(auth.RequireAuthenticated())
	blog.MountArticleRoutes(protected, blogService, logger)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
