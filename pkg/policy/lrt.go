package policy

import (
	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

// LRT (least-response-time) picks the eligible target minimizing
// active_connections x avg_ttfb_ms. Targets with no TTFB samples yet use a
// metric of 0, so cold targets are preferred until they acquire samples
// (spec.md §9: an intentional way to spread initial load).
type LRT struct{}

// NewLRT builds a least-response-time policy. It holds no private state:
// all the metrics it reads live on the Target itself.
func NewLRT() *LRT {
	return &LRT{}
}

func (p *LRT) Pick(eligible []*target.Target, _ Context) (*target.Target, error) {
	if len(eligible) == 0 {
		return nil, ErrNoHealthyTargets{}
	}

	var best *target.Target
	var bestMetric float64
	for _, t := range eligible {
		metric := 0.0
		if t.HasSamples() {
			metric = float64(t.ActiveConnections()) * t.AvgTTFBMillis()
		}
		if best == nil || metric < bestMetric {
			best = t
			bestMetric = metric
		}
	}
	return best, nil
}
