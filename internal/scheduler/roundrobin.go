package scheduler

import (
	"github.com/Nash0810/minibalance/internal/backend"
)

// RoundRobin cycles over the armed backends in configuration order.
type RoundRobin struct {
	backends []*backend.Backend
	next     int
}

// NewRoundRobin creates a round-robin scheduler.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Rearm replaces the backend list and resets the cursor.
func (rr *RoundRobin) Rearm(backends []*backend.Backend) {
	rr.backends = append([]*backend.Backend(nil), backends...)
	rr.next = 0
}

// Next yields the next backend in configuration order.
func (rr *RoundRobin) Next() *backend.Backend {
	if len(rr.backends) == 0 {
		return nil
	}
	b := rr.backends[rr.next]
	rr.next = (rr.next + 1) % len(rr.backends)
	return b
}

// Name returns the algorithm name.
func (rr *RoundRobin) Name() string {
	return AlgoRoundRobin
}
