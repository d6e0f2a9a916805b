package pool

import (
	"crypto/md5"
	"math/big"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Nash0810/minibalance/internal/backend"
	"github.com/Nash0810/minibalance/internal/logging"
	"github.com/Nash0810/minibalance/internal/metrics"
	"github.com/Nash0810/minibalance/internal/scheduler"
)

// Pool owns the set of backends, the active scheduler, the sliding-window
// request statistics, and the two background loops (health checks, stats
// cleanup).
//
// One mutex protects the backends map, the scheduler and its internal state,
// the statistics store, and every mutable Backend field. All in-lock work is
// O(number of backends). Metric emission from the hot paths happens after the
// lock is dropped so the pool lock and the registry lock never nest.
type Pool struct {
	mu         sync.Mutex
	backends   map[string]*backend.Backend
	order      []string // insertion order, drives display and scheduler arming
	sched      scheduler.Scheduler
	sourceHash bool
	armed      int // size of the healthy subset the scheduler was last armed with

	requestTimes  map[string][]time.Time
	totalRequests map[string]int64

	registry *metrics.Registry // nil when metrics are disabled
	log      *logging.Logger
	now      func() time.Time

	healthInterval time.Duration
	healthClient   *http.Client
	healthStop     func()
	healthDone     chan struct{}

	cleanupInterval time.Duration
	cleanupStop     func()
	cleanupDone     chan struct{}
}

// Options configure a pool. Zero values select the defaults.
type Options struct {
	HealthCheckInterval time.Duration     // default 5s
	HealthCheckTimeout  time.Duration     // default 2s, total per probe
	CleanupInterval     time.Duration     // default 1h
	Metrics             *metrics.Registry // nil disables metric emission
	Logger              *logging.Logger   // nil discards logs
}

// New creates a pool with no backends and the round-robin scheduler.
func New(opts Options) *Pool {
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = 5 * time.Second
	}
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = 2 * time.Second
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	sched, _ := scheduler.New(scheduler.AlgoRoundRobin)
	return &Pool{
		backends:        make(map[string]*backend.Backend),
		sched:           sched,
		requestTimes:    make(map[string][]time.Time),
		totalRequests:   make(map[string]int64),
		registry:        opts.Metrics,
		log:             opts.Logger,
		now:             time.Now,
		healthInterval:  opts.HealthCheckInterval,
		healthClient:    &http.Client{Timeout: opts.HealthCheckTimeout},
		cleanupInterval: opts.CleanupInterval,
	}
}

// Add inserts a backend. An existing entry for the same url is replaced in
// place, keeping its display position. Weights below 1 take the default.
func (p *Pool) Add(url string, weight int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.backends[url]; !exists {
		p.order = append(p.order, url)
	}
	p.backends[url] = backend.NewWeighted(url, weight)
	p.rebuildLocked()
}

// Remove deletes a backend if present. Statistics recorded for the url are
// kept until the cleanup loop ages them out.
func (p *Pool) Remove(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.backends[url]; !exists {
		return
	}
	delete(p.backends, url)
	for i, u := range p.order {
		if u == url {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.rebuildLocked()
}

// SetScheduler replaces the active scheduling algorithm. source_hash flips
// the pool into ip-affinity dispatch; the other names construct a scheduler.
func (p *Pool) SetScheduler(algo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if algo == scheduler.AlgoSourceHash {
		p.sourceHash = true
		return nil
	}

	sched, err := scheduler.New(algo)
	if err != nil {
		return err
	}
	p.sourceHash = false
	p.sched = sched
	p.rebuildLocked()
	return nil
}

// SourceHashActive reports whether source-hash dispatch is in effect.
func (p *Pool) SourceHashActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sourceHash
}

// rebuildLocked re-arms the scheduler with the current healthy subset,
// resetting its cursor. Called on membership changes; health-only changes
// are handled lazily in SelectBackend.
func (p *Pool) rebuildLocked() {
	healthy := p.healthyLocked()
	p.sched.Rearm(healthy)
	p.armed = len(healthy)
}

// healthyLocked returns the healthy backends in insertion order.
func (p *Pool) healthyLocked() []*backend.Backend {
	var healthy []*backend.Backend
	for _, url := range p.order {
		if b := p.backends[url]; b.Healthy {
			healthy = append(healthy, b)
		}
	}
	return healthy
}

// SelectBackend picks a healthy backend by the active policy and
// pre-increments its connection count. Returns nil when no healthy backend
// exists.
//
// The armed cursor may lag health transitions (sweeps do not rebuild). When
// it yields nothing, or a backend that has since gone unhealthy, or the
// healthy subset has changed size since the last arming (a backend
// recovered), the scheduler is re-armed with the current healthy subset and
// stepped once more; that retry cannot miss because the subset was just
// checked non-empty.
func (p *Pool) SelectBackend() *backend.Backend {
	p.mu.Lock()
	healthy := p.healthyLocked()
	if len(healthy) == 0 {
		p.mu.Unlock()
		return nil
	}

	b := p.sched.Next()
	if b == nil || !b.Healthy || len(healthy) != p.armed {
		p.sched.Rearm(healthy)
		p.armed = len(healthy)
		b = p.sched.Next()
	}
	if b == nil {
		p.mu.Unlock()
		return nil
	}

	b.ActiveConnections++
	active := b.ActiveConnections
	url := b.URL
	p.mu.Unlock()

	p.emitActiveGauge(url, active)
	return b
}

// SelectBackendByIP dispatches by client ip when source-hash mode is active:
// healthy backends sorted by url, indexed by the MD5 of the ip modulo the
// list length. The same ip maps to the same backend until membership or
// health changes the sorted list. Outside source-hash mode it behaves exactly
// like SelectBackend, so the data plane can call it unconditionally.
func (p *Pool) SelectBackendByIP(ip string) *backend.Backend {
	p.mu.Lock()
	if !p.sourceHash {
		p.mu.Unlock()
		return p.SelectBackend()
	}

	healthy := p.healthyLocked()
	if len(healthy) == 0 {
		p.mu.Unlock()
		return nil
	}
	sort.Slice(healthy, func(i, j int) bool { return healthy[i].URL < healthy[j].URL })

	b := healthy[sourceHashIndex(ip, len(healthy))]
	b.ActiveConnections++
	active := b.ActiveConnections
	url := b.URL
	p.mu.Unlock()

	p.emitActiveGauge(url, active)
	return b
}

// sourceHashIndex maps an ip to an index in [0, n): the MD5 digest of the ip
// bytes, read as an unsigned integer, modulo n.
func sourceHashIndex(ip string, n int) int {
	sum := md5.Sum([]byte(ip))
	idx := new(big.Int).SetBytes(sum[:])
	return int(idx.Mod(idx, big.NewInt(int64(n))).Int64())
}

// Release returns a backend obtained from SelectBackend or
// SelectBackendByIP: its connection count drops and its request total grows.
// The backend may have been removed from the pool in the meantime; the
// counters live on the record the caller holds, so that is fine.
func (p *Pool) Release(b *backend.Backend) {
	p.mu.Lock()
	b.ActiveConnections--
	b.TotalRequests++
	active := b.ActiveConnections
	p.mu.Unlock()

	p.emitActiveGauge(b.URL, active)
}

func (p *Pool) emitActiveGauge(url string, active int) {
	if p.registry == nil {
		return
	}
	p.registry.SetGauge("backend.active_connections", float64(active), map[string]string{
		"backend": url,
	})
}

// Status is one backend's entry in a Show snapshot.
type Status struct {
	Weight            int  `json:"weight"`
	ActiveConnections int  `json:"active_connections"`
	Healthy           bool `json:"healthy"`
}

// Show returns a snapshot of the pool keyed by backend url.
func (p *Pool) Show() map[string]Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]Status, len(p.backends))
	for _, url := range p.order {
		b := p.backends[url]
		out[url] = Status{
			Weight:            b.Weight,
			ActiveConnections: b.ActiveConnections,
			Healthy:           b.Healthy,
		}
	}
	return out
}

// Stop shuts down both background loops. Safe to call at any point.
func (p *Pool) Stop() {
	p.StopHealthChecks()
	p.StopStatsCleanup()
}
