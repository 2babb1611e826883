package auth

import (
	"net/http"
	"time"
)

// Config carries the signing material, token lifetimes, and cookie settings
// shared by the codec, the carrier, and the login handlers.
type Config struct {
	SigningKey           []byte
	Issuer               string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	AuthStateMaxAge      time.Duration
	FallbackRedirectPath string
	CookieDomain         string
	AuthStateCookieName  string
	RedirectCookieName   string
	RefreshCookieName    string
	SameSiteMode         http.SameSite
	AllowInsecureHTTP    bool
}
