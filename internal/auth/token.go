package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors exposed by the codec.
var (
	ErrEmptySubject = errors.New("token.issue.empty_subject")
	ErrInvalidToken = errors.New("token.invalid")
)

// TokenClaims is the payload embedded in access and refresh tokens. The
// subject carries the user email; the id claim carries the numeric user id.
type TokenClaims struct {
	UserID int64 `json:"id"`
	jwt.RegisteredClaims
}

// Codec issues and verifies HS256-signed bearer tokens. Verification is a
// pure function of (token, signing key, clock) and performs no I/O, so it is
// safe to run on every request.
type Codec struct {
	signingKey []byte
	issuer     string
	clock      Clock
}

// NewCodec constructs a Codec. A nil clock falls back to the system clock.
func NewCodec(signingKey []byte, issuer string, clock Clock) *Codec {
	if clock == nil {
		clock = systemClock{}
	}
	return &Codec{
		signingKey: signingKey,
		issuer:     issuer,
		clock:      clock,
	}
}

// Issue creates a signed token for the principal with the given lifetime.
func (codec *Codec) Issue(principal Principal, ttl time.Duration) (string, error) {
	if strings.TrimSpace(principal.Email) == "" {
		return "", fmt.Errorf("token.issue: %w", ErrEmptySubject)
	}
	issuedAt := codec.clock.Now()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		UserID: principal.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    codec.issuer,
			Subject:   principal.Email,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(codec.signingKey)
	if signErr != nil {
		return "", fmt.Errorf("token.issue: %w", signErr)
	}
	return signed, nil
}

// Verify reports whether the token carries a valid signature and has not
// expired. Malformed, forged, and expired tokens are uniformly false; callers
// must not distinguish between the causes.
func (codec *Codec) Verify(tokenString string) bool {
	_, err := codec.parse(tokenString)
	return err == nil
}

// AuthenticationFor resolves the principal embedded in a token. Callers must
// only pass tokens that already passed Verify.
func (codec *Codec) AuthenticationFor(tokenString string) (Principal, error) {
	claims, parseErr := codec.parse(tokenString)
	if parseErr != nil {
		return Principal{}, parseErr
	}
	return Principal{ID: claims.UserID, Email: claims.Subject}, nil
}

// SubjectID extracts just the numeric id claim from a token.
func (codec *Codec) SubjectID(tokenString string) (int64, error) {
	claims, parseErr := codec.parse(tokenString)
	if parseErr != nil {
		return 0, parseErr
	}
	return claims.UserID, nil
}

func (codec *Codec) parse(tokenString string) (*TokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token.parse: %w", ErrInvalidToken)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return codec.clock.Now()
	}))
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("token.parse: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*TokenClaims)
	if !ok {
		return nil, fmt.Errorf("token.parse: %w", ErrInvalidToken)
	}
	if codec.issuer != "" && claims.Issuer != codec.issuer {
		return nil, fmt.Errorf("token.parse: %w", ErrInvalidToken)
	}
	return claims, nil
}
