package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestActorFromContext(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("expected no actor on a bare context")
	}
	ctx := ContextWithActor(context.Background(), "alice")
	actor, ok := ActorFromContext(ctx)
	if !ok || actor != "alice" {
		t.Fatalf("expected alice, got %q (%v)", actor, ok)
	}
	if _, ok := ActorFromContext(ContextWithActor(context.Background(), "")); ok {
		t.Fatalf("empty actor must not count")
	}
}

func TestRequireActor(t *testing.T) {
	var seen string
	handler := RequireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proposals", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/proposals", nil)
	req.Header.Set(ActorHeader, " bob ")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected request to pass, got %d", rec.Code)
	}
	if seen != "bob" {
		t.Fatalf("expected actor bob in context, got %q", seen)
	}
}
