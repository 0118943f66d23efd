package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestCredentialHeaderTakesPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/messages?password=query", nil)
	req.Header.Set(PasswordHeader, "header")
	if got := Credential(req); got != "header" {
		t.Fatalf("expected header credential, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/messages?password=query", nil)
	if got := Credential(req); got != "query" {
		t.Fatalf("expected query credential, got %q", got)
	}
}

func TestGateRejectsNearMisses(t *testing.T) {
	secret := strings.Repeat("a", 63) + "Z"
	g := NewGate(secret, zerolog.Nop())

	if !g.Check(secret) {
		t.Fatal("correct secret rejected")
	}
	candidates := []string{
		"",
		"b",
		strings.Repeat("a", 63),       // strict prefix
		strings.Repeat("a", 63) + "Y", // differs only in the last byte
		secret + "x",                  // extension
		strings.Repeat("a", 64),
	}
	for _, c := range candidates {
		if g.Check(c) {
			t.Fatalf("credential %q accepted", c)
		}
	}
}

func TestRequireWritesUnauthorized(t *testing.T) {
	g := NewGate("s3cret", zerolog.Nop())
	called := false
	h := g.Require(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.Header.Set(PasswordHeader, "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if called {
		t.Fatal("next handler ran for an unauthorized request")
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("expected error body, got %v", body)
	}
}

func TestRequireWrongHeaderDoesNotFallBackToQuery(t *testing.T) {
	g := NewGate("s3cret", zerolog.Nop())
	called := false
	h := g.Require(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/messages?password=s3cret", nil)
	req.Header.Set(PasswordHeader, "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized || called {
		t.Fatalf("expected header to win and be rejected, got %d", w.Code)
	}
}

func TestRequireAcceptsQueryParam(t *testing.T) {
	g := NewGate("s3cret", zerolog.Nop())
	called := false
	h := g.Require(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/messages?password=s3cret", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !called {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
}
