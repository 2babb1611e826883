package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// Sentinel errors surfaced by the identity exchange.
var (
	ErrMissingIDToken  = errors.New("oauth.exchange.missing_id_token")
	ErrInvalidIDToken  = errors.New("oauth.exchange.invalid_id_token")
	ErrUnverifiedEmail = errors.New("oauth.exchange.unverified_email")
	ErrNonceMismatch   = errors.New("oauth.exchange.nonce_mismatch")
)

// IdentityExchanger converts an authorization code into a verified provider
// identity. Implementations own the provider protocol; the handshake handlers
// only care about the resulting email and display name.
type IdentityExchanger interface {
	Exchange(ctx context.Context, code string, nonce string) (ProviderIdentity, error)
}

// GoogleExchanger redeems authorization codes against Google and verifies the
// returned id_token signature, audience, and nonce.
type GoogleExchanger struct {
	oauthConfig *oauth2.Config
}

// NewGoogleOAuthConfig builds the x/oauth2 configuration for Google login.
func NewGoogleOAuthConfig(clientID string, clientSecret string, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// NewGoogleExchanger constructs an exchanger over the given configuration.
func NewGoogleExchanger(oauthConfig *oauth2.Config) *GoogleExchanger {
	return &GoogleExchanger{oauthConfig: oauthConfig}
}

// Exchange redeems the code and validates the embedded id_token.
func (exchanger *GoogleExchanger) Exchange(ctx context.Context, code string, nonce string) (ProviderIdentity, error) {
	token, exchangeErr := exchanger.oauthConfig.Exchange(ctx, code)
	if exchangeErr != nil {
		return ProviderIdentity{}, fmt.Errorf("oauth.exchange: %w", exchangeErr)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || strings.TrimSpace(rawIDToken) == "" {
		return ProviderIdentity{}, fmt.Errorf("oauth.exchange: %w", ErrMissingIDToken)
	}
	payload, validateErr := idtoken.Validate(ctx, rawIDToken, exchanger.oauthConfig.ClientID)
	if validateErr != nil {
		return ProviderIdentity{}, fmt.Errorf("oauth.exchange: %w", ErrInvalidIDToken)
	}
	if nonce != "" {
		tokenNonce, _ := payload.Claims["nonce"].(string)
		if tokenNonce != nonce {
			return ProviderIdentity{}, fmt.Errorf("oauth.exchange: %w", ErrNonceMismatch)
		}
	}
	email, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	displayName, _ := payload.Claims["name"].(string)
	if email == "" || !emailVerified {
		return ProviderIdentity{}, fmt.Errorf("oauth.exchange: %w", ErrUnverifiedEmail)
	}
	return ProviderIdentity{Email: email, Name: displayName}, nil
}

// LoginHandshake serves the two redirect entrypoints of the provider login:
// the outbound authorization redirect and the provider callback. All pending
// state between the two rides in carrier cookies; the server keeps nothing.
type LoginHandshake struct {
	oauthConfig *oauth2.Config
	exchanger   IdentityExchanger
	carrier     *StateCarrier
	completer   *LoginCompleter
	logger      *zap.Logger
}

// NewLoginHandshake wires the handshake handlers.
func NewLoginHandshake(oauthConfig *oauth2.Config, exchanger IdentityExchanger, carrier *StateCarrier, completer *LoginCompleter, logger *zap.Logger) *LoginHandshake {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginHandshake{
		oauthConfig: oauthConfig,
		exchanger:   exchanger,
		carrier:     carrier,
		completer:   completer,
		logger:      logger,
	}
}

// Begin persists the pending authorization request in cookies and redirects
// the user agent to the provider.
func (handshake *LoginHandshake) Begin(contextGin *gin.Context) {
	state := uuid.NewString()
	nonce, nonceErr := randomNonce()
	if nonceErr != nil {
		handshake.logger.Error("nonce generation failed",
			zap.String("code", "oauth.begin.nonce"),
			zap.Error(nonceErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	pending := AuthorizationRequest{
		State:         state,
		Nonce:         nonce,
		RedirectURI:   handshake.oauthConfig.RedirectURL,
		Scopes:        handshake.oauthConfig.Scopes,
		CreatedAtUnix: nowUnix(),
	}
	if saveErr := handshake.carrier.Save(contextGin.Writer, pending); saveErr != nil {
		handshake.logger.Error("authorization state save failed",
			zap.String("code", "oauth.begin.save_state"),
			zap.Error(saveErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if target := contextGin.Query("redirect_to"); target != "" {
		handshake.carrier.SaveRedirectTarget(contextGin.Writer, target)
	}

	authURL := handshake.oauthConfig.AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))
	contextGin.Redirect(http.StatusFound, authURL)
}

// Callback validates the returning redirect against the carried state and
// hands the verified identity to the completion handler.
func (handshake *LoginHandshake) Callback(contextGin *gin.Context) {
	pending, found := handshake.carrier.Load(contextGin.Request)
	if !found {
		// No pending request: the flow restarts from the login page.
		handshake.carrier.Remove(contextGin.Writer)
		contextGin.Redirect(http.StatusFound, "/login")
		return
	}

	if providerError := contextGin.Query("error"); providerError != "" {
		handshake.logger.Warn("provider reported an authorization error",
			zap.String("code", "oauth.callback.provider_error"),
			zap.String("provider_error", providerError))
		handshake.carrier.Remove(contextGin.Writer)
		contextGin.Redirect(http.StatusFound, "/login")
		return
	}

	if contextGin.Query("state") != pending.State {
		handshake.carrier.Remove(contextGin.Writer)
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	code := contextGin.Query("code")
	if code == "" {
		handshake.carrier.Remove(contextGin.Writer)
		contextGin.AbortWithStatus(http.StatusBadRequest)
		return
	}

	identity, exchangeErr := handshake.exchanger.Exchange(contextGin, code, pending.Nonce)
	if exchangeErr != nil {
		handshake.logger.Warn("identity exchange failed",
			zap.String("code", "oauth.callback.exchange"),
			zap.Error(exchangeErr))
		handshake.carrier.Remove(contextGin.Writer)
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	handshake.completer.Complete(contextGin, identity)
}

const nonceByteLength = 32

func randomNonce() (string, error) {
	buffer := make([]byte, nonceByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

func nowUnix() int64 {
	return time.Now().UTC().Unix()
}
