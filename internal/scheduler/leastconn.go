package scheduler

import (
	"container/heap"

	"github.com/Nash0810/minibalance/internal/backend"
)

// loadEntry scores one backend for the load-based policies. Ties break on
// url so that selection is deterministic regardless of map or arm order.
type loadEntry struct {
	score   float64
	url     string
	backend *backend.Backend
}

// loadHeap is a min-heap of loadEntry.
type loadHeap []loadEntry

func (h loadHeap) Len() int { return len(h) }

func (h loadHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].url < h[j].url
}

func (h loadHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *loadHeap) Push(x any) { *h = append(*h, x.(loadEntry)) }

func (h *loadHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// minEntry heapifies the entries and returns the backend at the root.
// The set is small, so rebuilding per step buys exactness for the price of
// O(n); live connection counts make a persistent heap stale immediately.
func minEntry(entries []loadEntry) *backend.Backend {
	if len(entries) == 0 {
		return nil
	}
	h := loadHeap(entries)
	heap.Init(&h)
	return h[0].backend
}

// LeastConnections picks the backend with the fewest active connections at
// each step.
type LeastConnections struct {
	backends []*backend.Backend
	scratch  []loadEntry
}

// NewLeastConnections creates a least-connections scheduler.
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

// Rearm replaces the backend list.
func (lc *LeastConnections) Rearm(backends []*backend.Backend) {
	lc.backends = append([]*backend.Backend(nil), backends...)
}

// Next yields the backend with the smallest active connection count.
func (lc *LeastConnections) Next() *backend.Backend {
	lc.scratch = lc.scratch[:0]
	for _, b := range lc.backends {
		lc.scratch = append(lc.scratch, loadEntry{
			score:   float64(b.ActiveConnections),
			url:     b.URL,
			backend: b,
		})
	}
	return minEntry(lc.scratch)
}

// Name returns the algorithm name.
func (lc *LeastConnections) Name() string {
	return AlgoLeastConn
}

// WeightedLeastConnections picks the backend minimizing the ratio of active
// connections to weight. Backends with weight 0 are excluded from rotation.
type WeightedLeastConnections struct {
	backends []*backend.Backend
	scratch  []loadEntry
}

// NewWeightedLeastConnections creates a weighted least-connections scheduler.
func NewWeightedLeastConnections() *WeightedLeastConnections {
	return &WeightedLeastConnections{}
}

// Rearm replaces the backend list.
func (wlc *WeightedLeastConnections) Rearm(backends []*backend.Backend) {
	wlc.backends = append([]*backend.Backend(nil), backends...)
}

// Next yields the backend with the smallest connections/weight ratio.
func (wlc *WeightedLeastConnections) Next() *backend.Backend {
	wlc.scratch = wlc.scratch[:0]
	for _, b := range wlc.backends {
		if b.Weight <= 0 {
			continue
		}
		wlc.scratch = append(wlc.scratch, loadEntry{
			score:   float64(b.ActiveConnections) / float64(b.Weight),
			url:     b.URL,
			backend: b,
		})
	}
	return minEntry(wlc.scratch)
}

// Name returns the algorithm name.
func (wlc *WeightedLeastConnections) Name() string {
	return AlgoWeightedLeastConn
}
