package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	token, err := m.Generate("dashboard")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	subject, err := m.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if subject != "dashboard" {
		t.Errorf("expected subject dashboard, got %q", subject)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)

	token, err := issuer.Generate("dashboard")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := verifier.Validate(token); err == nil {
		t.Error("token signed with a different secret must not validate")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewTokenManager("test-secret", -time.Minute)

	token, err := m.Generate("dashboard")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.Validate(token); err == nil {
		t.Error("expired token must not validate")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	if _, err := m.Validate("not-a-token"); err == nil {
		t.Error("malformed token must not validate")
	}
}

func authTestRouter(m *TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", m.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject")})
	})
	return r
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	r := authTestRouter(NewTokenManager("test-secret", time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without bearer token, got %d", w.Code)
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	r := authTestRouter(m)

	token, err := m.Generate("dashboard")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d: %s", w.Code, w.Body.String())
	}
}
