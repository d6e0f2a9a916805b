package scheduler

import (
	"github.com/Nash0810/minibalance/internal/backend"
)

// WeightedRoundRobin cycles a repetition list where each backend appears
// weight times in configuration order. The sequence for weights [2,1] on
// [b1,b2] is exactly b1,b1,b2,b1,b1,b2,...
//
// A backend with weight 0 never enters the list. The cycle is deterministic;
// sampling the list at random would satisfy the expected proportions but not
// the ordering callers can rely on.
type WeightedRoundRobin struct {
	weighted []*backend.Backend
	next     int
}

// NewWeightedRoundRobin creates a weighted round-robin scheduler.
func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{}
}

// Rearm rebuilds the repetition list and resets the cursor.
func (wrr *WeightedRoundRobin) Rearm(backends []*backend.Backend) {
	wrr.weighted = wrr.weighted[:0]
	for _, b := range backends {
		for i := 0; i < b.Weight; i++ {
			wrr.weighted = append(wrr.weighted, b)
		}
	}
	wrr.next = 0
}

// Next yields the next entry of the repetition list.
func (wrr *WeightedRoundRobin) Next() *backend.Backend {
	if len(wrr.weighted) == 0 {
		return nil
	}
	b := wrr.weighted[wrr.next]
	wrr.next = (wrr.next + 1) % len(wrr.weighted)
	return b
}

// Name returns the algorithm name.
func (wrr *WeightedRoundRobin) Name() string {
	return AlgoWeighted
}
