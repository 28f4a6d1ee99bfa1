package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wayneh-tw/linegem/pkg/logging"
)

func TestRequestLoggerPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	handler := RequestLogger(logging.New("error"))(next)

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Fatal("expected next handler to be called")
	}
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected recorded status %d, got %d", http.StatusTeapot, rr.Code)
	}
}

func TestRequestLoggerNilLogger(t *testing.T) {
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected default status 200, got %d", rr.Code)
	}
}
