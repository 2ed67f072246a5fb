package policy

import (
	"sync"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

// Weighted implements deterministic smooth weighted round-robin (the
// nginx-style algorithm): no two picks of the heaviest target are ever more
// than a handful of lighter picks apart, unlike naive weighted-random
// selection.
type Weighted struct {
	mu            sync.Mutex
	order         []string // declaration order, for tie-breaks
	weights       map[string]int
	currentWeight map[string]int
}

// NewWeighted builds a weighted policy over the full target set. weights
// must contain an entry for every target in order; this is enforced by
// config.Validate, not here.
func NewWeighted(order []string, weights map[string]int) *Weighted {
	cw := make(map[string]int, len(order))
	for _, id := range order {
		cw[id] = 0
	}
	return &Weighted{order: order, weights: weights, currentWeight: cw}
}

// Pick runs one step of the smooth weighted round-robin schedule restricted
// to the eligible set.
func (p *Weighted) Pick(eligible []*target.Target, _ Context) (*target.Target, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byID := make(map[string]*target.Target, len(eligible))
	for _, t := range eligible {
		byID[t.ID] = t
	}

	total := 0
	bestID := ""
	bestWeight := 0
	haveBest := false
	for _, id := range p.order {
		if _, ok := byID[id]; !ok {
			continue // not eligible, contributes zero effective weight
		}
		total += p.weights[id]
		if !haveBest || p.currentWeight[id] > bestWeight {
			bestID = id
			bestWeight = p.currentWeight[id]
			haveBest = true
		}
	}

	if total == 0 || !haveBest {
		return nil, ErrNoHealthyTargets{}
	}

	p.currentWeight[bestID] -= total
	for _, id := range p.order {
		p.currentWeight[id] += p.weights[id]
	}

	return byID[bestID], nil
}
