package balancer

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Nash0810/minibalance/internal/metrics"
	"github.com/Nash0810/minibalance/internal/pool"
)

func newTestPool(urls ...string) *pool.Pool {
	p := pool.New(pool.Options{})
	for _, u := range urls {
		p.Add(u, 1)
	}
	return p
}

// TestProxyForwardsRequest tests method, path, headers, and body forwarding
func TestProxyForwardsRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, "%s %s %s %s", r.Method, r.URL.RequestURI(), r.Header.Get("X-Custom"), body)
	}))
	defer upstream.Close()

	p := newTestPool(upstream.URL)
	proxy := NewProxy(p, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/items?q=1", strings.NewReader("payload"))
	req.Header.Set("X-Custom", "value")
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status: got %d, want 201", rec.Code)
	}
	if got := rec.Body.String(); got != "POST /api/items?q=1 value payload" {
		t.Errorf("unexpected upstream view: %q", got)
	}
	if rec.Header().Get("X-Upstream") != "yes" {
		t.Error("upstream response headers should be relayed")
	}
}

// TestProxyNoBackends tests the 503 path
func TestProxyNoBackends(t *testing.T) {
	proxy := NewProxy(newTestPool(), nil, nil)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No backends") {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

// TestProxyUpstreamError tests the 502 path and that release still runs
func TestProxyUpstreamError(t *testing.T) {
	reg := metrics.NewRegistry()
	p := newTestPool("http://127.0.0.1:1") // connection refused
	proxy := NewProxy(p, reg, nil)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("got %d, want 502", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("502 body should carry the upstream error")
	}

	if st := p.Show()["http://127.0.0.1:1"]; st.ActiveConnections != 0 {
		t.Errorf("release must run on the error path, active=%d", st.ActiveConnections)
	}

	snap := reg.Snapshot()
	if len(snap.Counters["backend.errors.total"]) != 1 {
		t.Error("error counter not recorded")
	}
	found := false
	for key := range snap.Counters["backend.requests.total"] {
		if strings.Contains(key, `status="error"`) {
			found = true
		}
	}
	if !found {
		t.Error("request counter with status=error not recorded")
	}
}

// TestProxyRecordsStats tests that successes feed the stats store
func TestProxyRecordsStats(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	p := newTestPool(upstream.URL)
	proxy := NewProxy(p, nil, nil)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	}

	stats := p.GetStats([]string{"all"})
	if got := stats["all"].Backends[upstream.URL].Count; got != 3 {
		t.Errorf("expected 3 recorded requests, got %d", got)
	}
}

// TestProxyRecordsMetrics tests the success-path counters and latency
func TestProxyRecordsMetrics(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	reg := metrics.NewRegistry()
	proxy := NewProxy(newTestPool(upstream.URL), reg, nil)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	snap := reg.Snapshot()
	found := false
	for key, v := range snap.Counters["backend.requests.total"] {
		if strings.Contains(key, `method="GET"`) && strings.Contains(key, `status="200"`) && v == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("request counter missing: %v", snap.Counters["backend.requests.total"])
	}

	if len(snap.Histograms["backend.latency.ms"]) != 1 {
		t.Error("latency histogram not recorded")
	}
}

// TestProxySourceHashAffinity tests ip-sticky dispatch through the handler
func TestProxySourceHashAffinity(t *testing.T) {
	hits := make(map[string]int)
	var upstreams []*httptest.Server
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("u%d", i)
		upstreams = append(upstreams, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits[name]++
		})))
	}
	defer func() {
		for _, s := range upstreams {
			s.Close()
		}
	}()

	p := newTestPool(upstreams[0].URL, upstreams[1].URL)
	if err := p.SetScheduler("source_hash"); err != nil {
		t.Fatal(err)
	}
	proxy := NewProxy(p, nil, nil)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		proxy.ServeHTTP(httptest.NewRecorder(), req)
	}

	// One upstream takes everything, the other stays cold.
	if len(hits) != 1 {
		t.Errorf("same client ip should stick to one backend, got %v", hits)
	}
	for _, n := range hits {
		if n != 6 {
			t.Errorf("expected 6 hits on the sticky backend, got %d", n)
		}
	}
}

// TestProxyStripsHopHeaders tests hop-by-hop header removal
func TestProxyStripsHopHeaders(t *testing.T) {
	var sawKeepAlive bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Keep-Alive") != "" {
			sawKeepAlive = true
		}
	}))
	defer upstream.Close()

	proxy := NewProxy(newTestPool(upstream.URL), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Keep-Alive", "timeout=5")
	proxy.ServeHTTP(httptest.NewRecorder(), req)

	if sawKeepAlive {
		t.Error("hop-by-hop headers must not reach the upstream")
	}
}
