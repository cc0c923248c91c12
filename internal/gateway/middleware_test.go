package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/convoyhq/convoy/internal/ratelimit"
)

func TestRequireAPIKeyRejectsMissingAndWrongKey(t *testing.T) {
	s := New(Config{APIKey: "secret-key"})
	called := false
	handler := s.requireAPIKey(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if called {
		t.Fatal("handler should not run without a key")
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if called {
		t.Fatal("handler should not run with a wrong key")
	}
}

func TestRequireAPIKeyAcceptsCorrectKey(t *testing.T) {
	s := New(Config{APIKey: "secret-key"})
	called := false
	handler := s.requireAPIKey(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !called {
		t.Fatal("handler should run with the correct key")
	}
}

func TestRequireAPIKeyUnconfiguredRejectsEverything(t *testing.T) {
	s := New(Config{})
	handler := s.requireAPIKey(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("X-API-Key", "anything")
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestWithRateLimitSetsHeadersAndBlocksOverLimit(t *testing.T) {
	s := New(Config{RateLimitStore: ratelimit.NewMemoryStore(100)})
	s.cfg.RateLimits = PathClassLimits{Health: 6000, Webhook: 2, Authenticated: 1000, Default: 100}

	handler := s.withRateLimit(classWebhook, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook/tok", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, http.StatusOK)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("request %d: X-RateLimit-Limit = %q, want 2", i, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook/tok", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
}

func TestRateLimitIdentifierPriority(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := rateLimitIdentifier(req); got != "ip:10.0.0.1" {
		t.Fatalf("direct ip: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
	if got := rateLimitIdentifier(req); got != "ip:198.51.100.9" {
		t.Fatalf("forwarded ip: got %q", got)
	}

	req.Header.Set("X-API-Key", "abcdefghijklmno")
	if got := rateLimitIdentifier(req); got != "key:abcdefghijkl" {
		t.Fatalf("api key prefix: got %q", got)
	}
}

func TestVerifyWebhookSignatureRejectsBadSignature(t *testing.T) {
	s := New(Config{WebhookSecret: "shh"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook/tok", nil)
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	if err := s.verifyWebhookSignature(req, []byte("body")); err == nil {
		t.Fatal("expected signature mismatch error")
	}
}

func TestVerifyWebhookSignatureAcceptsValidSignature(t *testing.T) {
	s := New(Config{WebhookSecret: "shh"})
	body := []byte(`{"hello":"world"}`)
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook/tok", nil)
	req.Header.Set("X-Webhook-Signature", sig)
	req.Header.Set("X-Webhook-Timestamp", time.Now().Format(time.RFC3339))
	if err := s.verifyWebhookSignature(req, body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyWebhookSignatureRejectsStaleTimestamp(t *testing.T) {
	s := New(Config{WebhookSecret: "shh", ReplayWindow: 300 * time.Second})
	body := []byte(`{"hello":"world"}`)
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook/tok", nil)
	req.Header.Set("X-Webhook-Signature", sig)
	req.Header.Set("X-Webhook-Timestamp", time.Now().Add(-10*time.Minute).Format(time.RFC3339))
	if err := s.verifyWebhookSignature(req, body); err == nil {
		t.Fatal("expected replay-window rejection")
	}
}

func TestVerifyWebhookSignatureSkippedWhenUnconfigured(t *testing.T) {
	s := New(Config{})
	if err := s.verifyWebhookSignature(httptest.NewRequest(http.MethodPost, "/", nil), []byte("anything")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	s := New(Config{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
