package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newFilterRouter(codec *Codec) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TokenAuthentication(codec))
	router.GET("/open", func(contextGin *gin.Context) {
		principal, authenticated := CurrentPrincipal(contextGin)
		if !authenticated {
			contextGin.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"anonymous": false, "email": principal.Email})
	})
	protected := router.Group("/api")
	protected.Use(RequireAuthenticated())
	protected.GET("/private", func(contextGin *gin.Context) {
		principal, _ := CurrentPrincipal(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{"id": principal.ID})
	})
	return router
}

func TestFilterLetsAnonymousRequestsThrough(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("signing-key"), "issuer", fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	router := newFilterRouter(codec)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/open", nil)
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 without credentials, got %d", recorder.Code)
	}
}

func TestFilterIgnoresGarbageBearerToken(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("signing-key"), "issuer", fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	router := newFilterRouter(codec)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/open", nil)
	request.Header.Set("Authorization", "Bearer garbage")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected request to proceed, got %d", recorder.Code)
	}
	if body := recorder.Body.String(); body != `{"anonymous":true}` {
		t.Fatalf("expected anonymous request, got %s", body)
	}
}

func TestFilterIgnoresWrongScheme(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("signing-key"), "issuer", fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	token, err := codec.Issue(Principal{ID: 7, Email: "a@b.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue error: %v", err)
	}
	router := newFilterRouter(codec)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/open", nil)
	request.Header.Set("Authorization", "Basic "+token)
	router.ServeHTTP(recorder, request)

	if body := recorder.Body.String(); body != `{"anonymous":true}` {
		t.Fatalf("expected anonymous request for non-bearer scheme, got %s", body)
	}
}

func TestFilterAttachesPrincipal(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("signing-key"), "issuer", fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	token, err := codec.Issue(Principal{ID: 7, Email: "a@b.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue error: %v", err)
	}
	router := newFilterRouter(codec)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/open", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(recorder, request)

	if body := recorder.Body.String(); body != `{"anonymous":false,"email":"a@b.com"}` {
		t.Fatalf("expected authenticated request, got %s", body)
	}
}

func TestRequireAuthenticatedRejectsAnonymous(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("signing-key"), "issuer", fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	router := newFilterRouter(codec)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/private", nil)
	request.Header.Set("Authorization", "Bearer garbage")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from protected route, got %d", recorder.Code)
	}
}

func TestRequireAuthenticatedAdmitsValidToken(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("signing-key"), "issuer", fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	token, err := codec.Issue(Principal{ID: 9, Email: "user@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue error: %v", err)
	}
	router := newFilterRouter(codec)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/private", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if body := recorder.Body.String(); body != `{"id":9}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestPrincipalFromContextReachesRequestContext(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("signing-key"), "issuer", fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	token, err := codec.Issue(Principal{ID: 3, Email: "ctx@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue error: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TokenAuthentication(codec))
	router.GET("/ctx", func(contextGin *gin.Context) {
		principal, ok := PrincipalFromContext(contextGin.Request.Context())
		if !ok || principal.ID != 3 {
			contextGin.Status(http.StatusInternalServerError)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected principal on request context, got status %d", recorder.Code)
	}
}
