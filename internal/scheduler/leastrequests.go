package scheduler

import (
	"github.com/Nash0810/minibalance/internal/backend"
)

// LeastRequests picks the backend with the fewest completed requests at each
// step, spreading cumulative load rather than instantaneous load.
type LeastRequests struct {
	backends []*backend.Backend
	scratch  []loadEntry
}

// NewLeastRequests creates a least-requests scheduler.
func NewLeastRequests() *LeastRequests {
	return &LeastRequests{}
}

// Rearm replaces the backend list.
func (lr *LeastRequests) Rearm(backends []*backend.Backend) {
	lr.backends = append([]*backend.Backend(nil), backends...)
}

// Next yields the backend with the smallest total request count.
func (lr *LeastRequests) Next() *backend.Backend {
	lr.scratch = lr.scratch[:0]
	for _, b := range lr.backends {
		lr.scratch = append(lr.scratch, loadEntry{
			score:   float64(b.TotalRequests),
			url:     b.URL,
			backend: b,
		})
	}
	return minEntry(lr.scratch)
}

// Name returns the algorithm name.
func (lr *LeastRequests) Name() string {
	return AlgoLeastRequests
}
