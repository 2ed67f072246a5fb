// Package health runs the background probe loop that gates which targets a
// TargetGroup considers eligible for traffic. It owns all health state; the
// request path only ever reads Target.IsHealthy().
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

const probeTimeout = 5 * time.Second

// Config holds the tunables for one group's supervisor. Zero values are
// replaced with the documented defaults by New.
type Config struct {
	Path             string
	Interval         time.Duration
	SucceedThreshold int
	FailureThreshold int
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = "/health"
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.SucceedThreshold <= 0 {
		c.SucceedThreshold = 2
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 2
	}
}

type state struct {
	mu       sync.Mutex
	succeed  int
	fail     int
	healthy  bool
}

// Supervisor probes one group's targets on a fixed interval and flips each
// target's healthy flag according to a consecutive-threshold state machine.
type Supervisor struct {
	groupName string
	cfg       Config
	targets   []*target.Target
	states    map[string]*state
	client    *http.Client
	log       zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Supervisor for the given group and targets. It does not
// start probing until Start is called.
func New(groupName string, targets []*target.Target, cfg Config, logger zerolog.Logger) *Supervisor {
	cfg.applyDefaults()
	states := make(map[string]*state, len(targets))
	for _, t := range targets {
		states[t.ID] = &state{}
	}
	return &Supervisor{
		groupName: groupName,
		cfg:       cfg,
		targets:   targets,
		states:    states,
		client:    &http.Client{Timeout: probeTimeout},
		log:       logger.With().Str("group", groupName).Logger(),
		done:      make(chan struct{}),
	}
}

// Start launches the background ticker. It returns immediately; call Stop
// to request a cooperative shutdown.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
}

// Stop signals the supervisor to stop ticking and waits, bounded by
// 2x the probe timeout, for any in-flight probe round to finish.
func (s *Supervisor) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(2 * probeTimeout):
		s.log.Warn().Msg("health supervisor shutdown wait exceeded bound")
	}
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeAll(ctx)
		}
	}
}

func (s *Supervisor) probeAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.targets {
		t := t
		g.Go(func() error {
			ok := s.probeOne(gctx, t)
			s.recordOutcome(t, ok)
			return nil
		})
	}
	// Errors are never returned by the probe goroutines themselves (probe
	// failures are outcomes, not errors); Wait only serves to join them
	// before the next tick.
	_ = g.Wait()
}

func (s *Supervisor) probeOne(ctx context.Context, t *target.Target) bool {
	url := fmt.Sprintf("http://%s%s", t.Addr(), s.cfg.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Close = true
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (s *Supervisor) recordOutcome(t *target.Target, success bool) {
	st := s.states[t.ID]
	st.mu.Lock()
	defer st.mu.Unlock()

	if success {
		st.succeed++
		st.fail = 0
		if !st.healthy && st.succeed >= s.cfg.SucceedThreshold {
			st.healthy = true
			t.SetHealthy(true)
			s.log.Info().Str("target", t.ID).Msg("target became healthy")
		}
	} else {
		st.fail++
		st.succeed = 0
		if st.healthy && st.fail >= s.cfg.FailureThreshold {
			st.healthy = false
			t.SetHealthy(false)
			s.log.Warn().Str("target", t.ID).Msg("target became unhealthy")
		}
	}
}
