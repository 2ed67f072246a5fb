package policy

import (
	"sync/atomic"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

// RoundRobin cycles through the eligible set in order, wrapping with a
// single atomically-updated counter shared across all callers.
type RoundRobin struct {
	counter uint64
}

// NewRoundRobin constructs a fresh round-robin policy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Pick returns eligible[c % len(eligible)] and advances c atomically.
func (p *RoundRobin) Pick(eligible []*target.Target, _ Context) (*target.Target, error) {
	if len(eligible) == 0 {
		return nil, ErrNoHealthyTargets{}
	}
	idx := atomic.AddUint64(&p.counter, 1) - 1
	return eligible[idx%uint64(len(eligible))], nil
}
