package routing

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	c, err := NewClassifier(testAllowlist(), "server")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	return NewRouter(c)
}

func TestRouter_ExactAndNotFound(t *testing.T) {
	t.Parallel()

	r := testRouter(t)
	r.Handle(RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRouter_PathParams(t *testing.T) {
	t.Parallel()

	r := testRouter(t)
	var gotID string
	r.Handle(RouteClassInternalAPI, http.MethodPost, "/api/proposals/{id}/approve", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotID = PathParams(req.Context())["id"]
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/proposals/p-42/approve", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if gotID != "p-42" {
		t.Fatalf("id=%q", gotID)
	}
}

func TestRouter_PanicGuard(t *testing.T) {
	t.Parallel()

	r := testRouter(t)
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/api/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
}
