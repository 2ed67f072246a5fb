package policy

import (
	"sync"
	"time"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

type session struct {
	targetID string
	expires  time.Time
}

// Sticky pins a client fingerprint to a target for a configurable TTL,
// falling back to round-robin over the eligible set whenever no live
// session exists. Sessions are process-local (spec.md §9): they do not
// survive a restart and are not shared across instances.
type Sticky struct {
	ttl time.Duration
	rr  *RoundRobin

	mu       sync.Mutex
	sessions map[string]session
}

// NewSticky builds a sticky-session policy with the given TTL.
func NewSticky(ttl time.Duration) *Sticky {
	return &Sticky{
		ttl:      ttl,
		rr:       NewRoundRobin(),
		sessions: make(map[string]session),
	}
}

// Pick resolves the request's client fingerprint to a pinned target when
// one exists, is unexpired, and remains eligible; otherwise it picks a new
// target via round-robin and pins the session.
func (p *Sticky) Pick(eligible []*target.Target, ctx Context) (*target.Target, error) {
	if len(eligible) == 0 {
		return nil, ErrNoHealthyTargets{}
	}

	var fingerprint string
	if ctx.Request != nil {
		fingerprint = ClientFingerprint(ctx.Request)
	}

	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if fingerprint != "" {
		if s, ok := p.sessions[fingerprint]; ok && now.Before(s.expires) {
			if t := findByID(eligible, s.targetID); t != nil {
				p.sessions[fingerprint] = session{targetID: t.ID, expires: now.Add(p.ttl)}
				return t, nil
			}
		}
	}

	t, err := p.rr.Pick(eligible, ctx)
	if err != nil {
		return nil, err
	}
	if fingerprint != "" {
		p.sessions[fingerprint] = session{targetID: t.ID, expires: now.Add(p.ttl)}
	}
	return t, nil
}

func findByID(targets []*target.Target, id string) *target.Target {
	for _, t := range targets {
		if t.ID == id {
			return t
		}
	}
	return nil
}
