package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthorizationRequest is the transient OAuth2 authorization-request record
// that correlates an outbound provider redirect with its return callback.
// With no server-side session, it round-trips through the client inside a
// cookie.
type AuthorizationRequest struct {
	State         string   `json:"state"`
	Nonce         string   `json:"nonce,omitempty"`
	RedirectURI   string   `json:"redirect_uri"`
	Scopes        []string `json:"scopes,omitempty"`
	CreatedAtUnix int64    `json:"created_at"`
}

// StateCarrier serializes pending authorization requests into cookies and
// clears them once the login round-trip completes. A cookie that fails to
// deserialize is treated as absent, never as an error, so a forged or
// truncated value cannot break the redirect chain.
type StateCarrier struct {
	stateCookieName    string
	redirectCookieName string
	cookiePath         string
	cookieDomain       string
	maxAge             time.Duration
	sameSite           http.SameSite
	secure             bool
}

// NewStateCarrier constructs a carrier from the shared auth configuration.
func NewStateCarrier(configuration Config) *StateCarrier {
	stateName := configuration.AuthStateCookieName
	if stateName == "" {
		stateName = "oauth_authorization_request"
	}
	redirectName := configuration.RedirectCookieName
	if redirectName == "" {
		redirectName = "redirect_uri"
	}
	maxAge := configuration.AuthStateMaxAge
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &StateCarrier{
		stateCookieName:    stateName,
		redirectCookieName: redirectName,
		cookiePath:         "/",
		cookieDomain:       configuration.CookieDomain,
		maxAge:             maxAge,
		sameSite:           configuration.SameSiteMode,
		secure:             !configuration.AllowInsecureHTTP,
	}
}

// Save writes the pending authorization request as a cookie bounded by the
// carrier's max-age.
func (carrier *StateCarrier) Save(writer http.ResponseWriter, request AuthorizationRequest) error {
	encoded, encodeErr := json.Marshal(request)
	if encodeErr != nil {
		return encodeErr
	}
	http.SetCookie(writer, &http.Cookie{
		Name:     carrier.stateCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(encoded),
		Path:     carrier.cookiePath,
		Domain:   carrier.cookieDomain,
		MaxAge:   int(carrier.maxAge.Seconds()),
		Secure:   carrier.secure,
		HttpOnly: true,
		SameSite: carrier.sameSite,
	})
	return nil
}

// Load reads the pending authorization request back from the request. The
// second return value is false when the cookie is missing or undecodable.
func (carrier *StateCarrier) Load(request *http.Request) (AuthorizationRequest, bool) {
	cookie, cookieErr := request.Cookie(carrier.stateCookieName)
	if cookieErr != nil || cookie == nil || strings.TrimSpace(cookie.Value) == "" {
		return AuthorizationRequest{}, false
	}
	decoded, decodeErr := base64.RawURLEncoding.DecodeString(cookie.Value)
	if decodeErr != nil {
		return AuthorizationRequest{}, false
	}
	var pending AuthorizationRequest
	if unmarshalErr := json.Unmarshal(decoded, &pending); unmarshalErr != nil {
		return AuthorizationRequest{}, false
	}
	if pending.State == "" {
		return AuthorizationRequest{}, false
	}
	return pending, true
}

// SaveRedirectTarget records where to send the user after a successful login.
// Only site-relative paths are accepted so the login flow cannot be used as an
// open redirector.
func (carrier *StateCarrier) SaveRedirectTarget(writer http.ResponseWriter, target string) {
	if !validRedirectTarget(target) {
		return
	}
	http.SetCookie(writer, &http.Cookie{
		Name:     carrier.redirectCookieName,
		Value:    url.QueryEscape(target),
		Path:     carrier.cookiePath,
		Domain:   carrier.cookieDomain,
		MaxAge:   int(carrier.maxAge.Seconds()),
		Secure:   carrier.secure,
		HttpOnly: true,
		SameSite: carrier.sameSite,
	})
}

// RedirectTarget returns the stored post-login destination, or empty when the
// cookie is missing or invalid.
func (carrier *StateCarrier) RedirectTarget(request *http.Request) string {
	cookie, cookieErr := request.Cookie(carrier.redirectCookieName)
	if cookieErr != nil || cookie == nil {
		return ""
	}
	target, unescapeErr := url.QueryUnescape(cookie.Value)
	if unescapeErr != nil || !validRedirectTarget(target) {
		return ""
	}
	return target
}

// Remove expires the authorization-state cookie and the companion redirect
// cookie. It is idempotent: clearing with no cookies present is a no-op.
func (carrier *StateCarrier) Remove(writer http.ResponseWriter) {
	carrier.expire(writer, carrier.stateCookieName)
	carrier.expire(writer, carrier.redirectCookieName)
}

func (carrier *StateCarrier) expire(writer http.ResponseWriter, name string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     carrier.cookiePath,
		Domain:   carrier.cookieDomain,
		MaxAge:   -1,
		Secure:   carrier.secure,
		HttpOnly: true,
		SameSite: carrier.sameSite,
	})
}

func validRedirectTarget(target string) bool {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return false
	}
	parsed, parseErr := url.Parse(target)
	if parseErr != nil {
		return false
	}
	return parsed.Scheme == "" && parsed.Host == ""
}
