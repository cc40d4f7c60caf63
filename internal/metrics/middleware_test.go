package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsDurationAndCount(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/documents/{id}", "200"))
	for _, id := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/documents/"+id, http.NoBody))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/documents/{id}", "200"))
	if after-before != 2 {
		t.Errorf("requests keyed by route pattern: got %v, want 2", after-before)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestMiddleware_StatusCodes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusInternalServerError)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/missing", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", http.NoBody))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/missing", "404"))
	if after-before != 1 {
		t.Errorf("first written status should be recorded, delta = %v", after-before)
	}
}

func TestMiddleware_UnknownRoute(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/raw", http.NoBody))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "200"))
	if after-before != 1 {
		t.Errorf("requests outside chi should be labelled unknown, delta = %v", after-before)
	}
}
