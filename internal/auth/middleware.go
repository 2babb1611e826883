package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerScheme = "Bearer "

// TokenAuthentication extracts and verifies the Authorization bearer token on
// every request. A missing header, wrong scheme, or failed verification leaves
// the request anonymous and lets it continue; enforcement belongs to
// RequireAuthenticated on the protected route groups. The middleware performs
// no I/O: verification is an in-memory signature and expiry check.
func TokenAuthentication(codec *Codec) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		headerValue := contextGin.GetHeader("Authorization")
		if !strings.HasPrefix(headerValue, bearerScheme) {
			contextGin.Next()
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerScheme))
		if tokenString == "" || !codec.Verify(tokenString) {
			contextGin.Next()
			return
		}
		principal, resolveErr := codec.AuthenticationFor(tokenString)
		if resolveErr != nil {
			contextGin.Next()
			return
		}
		AttachPrincipal(contextGin, principal)
		contextGin.Next()
	}
}

// RequireAuthenticated aborts with 401 when no principal was attached by
// TokenAuthentication.
func RequireAuthenticated() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if _, authenticated := CurrentPrincipal(contextGin); !authenticated {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Next()
	}
}
