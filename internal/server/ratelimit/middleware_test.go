package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHeaders(w, Result{
		Allowed:   true,
		Limit:     60,
		Remaining: 45,
		ResetAt:   time.Unix(1706012345, 0),
	})
	if got := w.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %s, want 60", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "45" {
		t.Errorf("X-RateLimit-Remaining = %s, want 45", got)
	}
	if got := w.Header().Get("X-RateLimit-Reset"); got != "1706012345" {
		t.Errorf("X-RateLimit-Reset = %s, want 1706012345", got)
	}
	if got := w.Header().Get("Retry-After"); got != "" {
		t.Errorf("Retry-After should not be set for allowed requests, got %s", got)
	}
}

func TestWriteHeaders_RateLimited(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHeaders(w, Result{
		Limit:      60,
		ResetAt:    time.Unix(1706012345, 0),
		RetryAfter: 30 * time.Second,
	})
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %s, want 0", got)
	}
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %s, want 30", got)
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewResponseWriter(rec, Result{Allowed: true, Limit: 10, Remaining: 9, ResetAt: time.Unix(1, 0)})
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("ok"))
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("X-RateLimit-Remaining = %s, want 9", got)
	}
	if http.NewResponseController(w) == nil {
		t.Error("NewResponseController returned nil")
	}
}

func TestBuildKey(t *testing.T) {
	tests := []struct {
		scope Scope
		id    string
		want  string
	}{
		{ScopeIP, "10.0.0.1", "ip:10.0.0.1:write"},
		{ScopeActor, "bot", "actor:bot:write"},
		{Scope(99), "x", "unknown:x:write"},
	}
	for _, tt := range tests {
		if got := BuildKey(tt.scope, tt.id, "write"); got != tt.want {
			t.Errorf("BuildKey(%v, %q) = %q, want %q", tt.scope, tt.id, got, tt.want)
		}
	}
}
