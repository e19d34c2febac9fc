package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"geodraw/handlers/auth"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, secret string, claims auth.AppClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func protectedHandler(t *testing.T, gotClaims **auth.AppClaims) http.Handler {
	t.Helper()
	return AuthJWT(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(ClaimsContextKey).(*auth.AppClaims)
		if !ok {
			t.Error("Claims missing from request context")
		}
		*gotClaims = claims
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthJWT_ValidToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	auth.InitAuth()

	token := signTestToken(t, "test-secret", auth.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "github:42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Login: "mapmaker",
	})

	var gotClaims *auth.AppClaims
	req := httptest.NewRequest("GET", "/api/v2/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protectedHandler(t, &gotClaims).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rr.Code, http.StatusOK)
	}
	if gotClaims == nil || gotClaims.Subject != "github:42" || gotClaims.Login != "mapmaker" {
		t.Errorf("Claims mismatch: %+v", gotClaims)
	}
}

func TestAuthJWT_MissingHeader(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	auth.InitAuth()

	var gotClaims *auth.AppClaims
	req := httptest.NewRequest("GET", "/api/v2/sessions", nil)
	rr := httptest.NewRecorder()
	protectedHandler(t, &gotClaims).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Status code mismatch: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthJWT_MalformedHeader(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	auth.InitAuth()

	var gotClaims *auth.AppClaims
	req := httptest.NewRequest("GET", "/api/v2/sessions", nil)
	req.Header.Set("Authorization", "Token abc")
	rr := httptest.NewRecorder()
	protectedHandler(t, &gotClaims).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Status code mismatch: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthJWT_WrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	auth.InitAuth()

	token := signTestToken(t, "another-secret", auth.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "github:42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	var gotClaims *auth.AppClaims
	req := httptest.NewRequest("GET", "/api/v2/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protectedHandler(t, &gotClaims).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Status code mismatch: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthJWT_ExpiredToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	auth.InitAuth()

	token := signTestToken(t, "test-secret", auth.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "github:42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	var gotClaims *auth.AppClaims
	req := httptest.NewRequest("GET", "/api/v2/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protectedHandler(t, &gotClaims).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Status code mismatch: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
