package balancer

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Nash0810/minibalance/internal/logging"
	"github.com/Nash0810/minibalance/internal/metrics"
	"github.com/Nash0810/minibalance/internal/pool"
)

// Proxy is the data-plane handler: select a backend, forward the request
// with its original method, headers, and body, and relay the response.
type Proxy struct {
	pool     *pool.Pool
	client   *http.Client
	registry *metrics.Registry // nil when metrics are disabled
	log      *logging.Logger
}

// NewProxy creates the proxy handler. The registry may be nil.
func NewProxy(p *pool.Pool, registry *metrics.Registry, log *logging.Logger) *Proxy {
	if log == nil {
		log = logging.NewNop()
	}
	return &Proxy{
		pool:     p,
		client:   &http.Client{},
		registry: registry,
		log:      log,
	}
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	b := p.pool.SelectBackendByIP(clientIP(r))
	if b == nil {
		http.Error(w, "No backends", http.StatusServiceUnavailable)
		return
	}
	defer p.pool.Release(b)

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, b.URL+r.URL.RequestURI(), r.Body)
	if err != nil {
		p.failRequest(w, r, b.URL, err)
		return
	}
	copyHeaders(outReq.Header, r.Header)

	resp, err := p.client.Do(outReq)
	if err != nil {
		p.failRequest(w, r, b.URL, err)
		return
	}
	defer resp.Body.Close()

	p.pool.RecordRequest(b.URL)

	duration := float64(time.Since(start)) / float64(time.Millisecond)
	if p.registry != nil {
		p.registry.IncCounter("backend.requests.total", map[string]string{
			"backend": b.URL,
			"method":  r.Method,
			"status":  strconv.Itoa(resp.StatusCode),
		}, 1)
		p.registry.ObserveHistogram("backend.latency.ms", duration, map[string]string{
			"backend": b.URL,
		})
	}

	p.log.Info("request_proxied",
		"method", r.Method,
		"path", r.URL.Path,
		"backend", b.URL,
		"status", resp.StatusCode,
		"duration_ms", duration)

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.log.Warn("response_copy_interrupted", "backend", b.URL, "error", err)
	}
}

// failRequest answers 502 with the upstream error and records the error
// counters. Release still runs via the caller's defer.
func (p *Proxy) failRequest(w http.ResponseWriter, r *http.Request, backendURL string, err error) {
	p.log.Error("proxy_error", "backend", backendURL, "error", err)

	if p.registry != nil {
		p.registry.IncCounter("backend.errors.total", map[string]string{
			"backend": backendURL,
		}, 1)
		p.registry.IncCounter("backend.requests.total", map[string]string{
			"backend": backendURL,
			"method":  r.Method,
			"status":  "error",
		}, 1)
	}

	http.Error(w, err.Error(), http.StatusBadGateway)
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	for _, name := range hopHeaders {
		dst.Del(name)
	}
}

// clientIP extracts the peer address without the port. Used for source-hash
// affinity.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
