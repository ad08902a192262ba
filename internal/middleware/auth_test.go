package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/auth"
)

func TestRequireAuth_SetsAccountID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "secret"
	tok, err := auth.CreateToken("acct-1", auth.TokenConfig{Secret: secret, Expiry: time.Hour, Issuer: "test"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	r := gin.New()
	r.GET("/", RequireAuth(auth.TokenConfig{Secret: secret, Expiry: time.Hour, Issuer: "test"}), func(c *gin.Context) {
		accountID, ok := AccountIDFromContext(c)
		if !ok || accountID != "acct-1" {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAuth_RejectsMissingAndBadTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

	r := gin.New()
	r.GET("/", RequireAuth(cfg), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Bearer not-a-token", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}
