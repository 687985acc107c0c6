package earlyboot

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPointRegisterOnce(t *testing.T) {
	p := NewPoint()
	if p.Registered() {
		t.Fatal("new point should be empty")
	}

	noop := HookFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) { next.ServeHTTP(w, r) })
	if err := p.Register(noop); err != nil {
		t.Fatalf("first Register() error: %v", err)
	}
	if err := p.Register(noop); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}
	if err := NewPoint().Register(nil); err == nil {
		t.Fatal("Register(nil) should fail")
	}
}

func TestPointWrap(t *testing.T) {
	p := NewPoint()
	h := p.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("without hook: code = %d, want 204", rec.Code)
	}

	// Registering after Wrap still takes effect.
	_ = p.Register(HookFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("with hook: code = %d, want 418", rec.Code)
	}
}
