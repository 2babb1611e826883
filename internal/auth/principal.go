package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Principal is the resolved identity attached to an authenticated request.
type Principal struct {
	ID    int64
	Email string
}

// ginPrincipalKey is the gin context key the filter stores the principal under.
const ginPrincipalKey = "auth_principal"

type principalContextKey struct{}

// AttachPrincipal stores the principal on the gin context and on the request
// context so both gin handlers and plain handlers can reach it.
func AttachPrincipal(contextGin *gin.Context, principal Principal) {
	contextGin.Set(ginPrincipalKey, principal)
	requestContext := context.WithValue(contextGin.Request.Context(), principalContextKey{}, principal)
	contextGin.Request = contextGin.Request.WithContext(requestContext)
}

// CurrentPrincipal returns the principal attached by the authentication
// filter, or false when the request is anonymous.
func CurrentPrincipal(contextGin *gin.Context) (Principal, bool) {
	value, found := contextGin.Get(ginPrincipalKey)
	if !found {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	if !ok {
		return Principal{}, false
	}
	return principal, true
}

// PrincipalFromContext extracts the principal from a request context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}
