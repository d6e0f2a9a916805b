package pool

import (
	"context"
	"net/http"
	"time"

	"github.com/Nash0810/minibalance/internal/backend"
)

// StartHealthChecks launches the probe loop. Each sweep runs after the
// configured interval elapses; a second start while running is a no-op.
func (p *Pool) StartHealthChecks() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.healthStop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.healthStop = cancel
	p.healthDone = done
	go p.healthLoop(ctx, done)
}

// StopHealthChecks cancels the probe loop, interrupting any in-flight sweep,
// and waits for it to exit. Partially applied sweep results stand as-is.
// Stopping a stopped loop is a no-op.
func (p *Pool) StopHealthChecks() {
	p.mu.Lock()
	stop, done := p.healthStop, p.healthDone
	p.healthStop, p.healthDone = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

func (p *Pool) healthLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep probes every backend known at sweep start. Health bits flip as each
// probe lands; the sweep does not rebuild the scheduler, and the next
// SelectBackend observes the new bits and re-arms it when needed.
func (p *Pool) sweep(ctx context.Context) {
	p.mu.Lock()
	snapshot := make([]*backend.Backend, 0, len(p.backends))
	for _, url := range p.order {
		snapshot = append(snapshot, p.backends[url])
	}
	p.mu.Unlock()

	for _, b := range snapshot {
		if ctx.Err() != nil {
			return
		}
		p.probe(ctx, b)
	}
}

// probe issues one HEAD request. A response below 500 is healthy; any
// transport error, timeout, or 5xx marks the backend unhealthy.
func (p *Pool) probe(ctx context.Context, b *backend.Backend) {
	start := time.Now()
	healthy, err := p.probeOnce(ctx, b.URL)
	latency := float64(time.Since(start)) / float64(time.Millisecond)

	p.mu.Lock()
	wasHealthy := b.Healthy
	b.Healthy = healthy
	p.mu.Unlock()

	status := "healthy"
	switch {
	case err != nil:
		status = "error"
	case !healthy:
		status = "unhealthy"
	}

	if p.registry != nil {
		labels := map[string]string{"backend": b.URL}
		p.registry.ObserveHistogram("backend.health_check.latency.ms", latency, labels)
		p.registry.IncCounter("backend.health_check.total", map[string]string{
			"backend": b.URL,
			"status":  status,
		}, 1)
		if err != nil {
			p.registry.IncCounter("backend.health_check.errors", labels, 1)
		}
	}

	if wasHealthy != healthy {
		if healthy {
			p.log.Info("backend_recovered", "backend", b.URL)
		} else {
			p.log.Warn("backend_unhealthy", "backend", b.URL, "status", status, "error", err)
		}
	}
}

func (p *Pool) probeOnce(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := p.healthClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode < 500, nil
}
