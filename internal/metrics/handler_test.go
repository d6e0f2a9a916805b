package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestHandlerNegotiation tests Accept-driven format selection
func TestHandlerNegotiation(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("hits", nil, 2)
	h := r.Handler()

	// Default: Prometheus text.
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "lb_hits_total 2") {
		t.Errorf("unexpected text body: %s", rec.Body.String())
	}

	// Accept: application/json flips to the snapshot.
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	var snap Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if snap.Counters["hits"][""] != 2 {
		t.Errorf("snapshot wrong: %+v", snap)
	}

	// Any /json subtype works too.
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "text/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Error("a /json subtype should negotiate to JSON")
	}
}

// TestHandlerJSONEndpoint tests the always-JSON route
func TestHandlerJSONEndpoint(t *testing.T) {
	r := NewRegistry()
	r.SetGauge("g", 1.5, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics/json", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	var snap Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if snap.Gauges["g"][""] != 1.5 {
		t.Errorf("snapshot wrong: %+v", snap)
	}
}
