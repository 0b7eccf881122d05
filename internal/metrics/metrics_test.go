package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentCountsByRouteAndCode(t *testing.T) {
	m := New()
	h := m.Instrument("GET /books/{id}", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books/x", nil))
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET /books/{id}", "404")); got != 2 {
		t.Fatalf("requests = %v, want 2", got)
	}
}

func TestAuthEventsAndExposition(t *testing.T) {
	m := New()
	m.AuthEvent("auth.login", "fail")
	m.RateLimited("login")
	if got := testutil.ToFloat64(m.authEvents.WithLabelValues("auth.login", "fail")); got != 1 {
		t.Fatalf("auth events = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"biblioteca_auth_events_total", "biblioteca_rate_limited_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("exposition missing %s", name)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AuthEvent("auth.login", "success")
	m.RateLimited("login")
	next := http.NotFoundHandler()
	if h := m.Instrument("GET /", next); h == nil {
		t.Fatalf("expected passthrough handler")
	}
}
