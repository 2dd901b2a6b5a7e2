package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/now-is/chicommons-maps/internal/metrics"
	"github.com/now-is/chicommons-maps/internal/repository/memstore"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New(nil)

	handler := LoggingMiddleware(zap.New(core), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/healthz" {
		t.Fatalf("unexpected log fields %v", fields)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "418")); got != 1 {
		t.Fatalf("expected request to be counted, got %v", got)
	}
}

func TestDataLoaderMiddlewareAttachesLoader(t *testing.T) {
	store := memstore.New()
	var attached bool
	handler := DataLoaderMiddleware(store.Repos().Snapshots())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attached = SnapshotLoaderFromContext(r.Context()) != nil
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !attached {
		t.Fatalf("expected a snapshot loader in the request context")
	}
	if SnapshotLoaderFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != nil {
		t.Fatalf("expected no loader outside the middleware")
	}
}
