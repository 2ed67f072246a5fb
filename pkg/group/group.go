// Package group implements TargetGroup: a named pool of targets sharing a
// selection policy and an optional health supervisor.
package group

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/health"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/policy"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

// Group owns an ordered list of targets, a selection policy instance (which
// holds the weight map for weighted groups), and (if health checks are
// enabled) a supervisor. All of these are constructed once at startup.
type Group struct {
	Name    string
	Targets []*target.Target
	Policy  policy.Policy

	supervisor          *health.Supervisor
	healthChecksEnabled bool
}

// New builds a group. pol must already be constructed for this group's
// policy kind and weight map (see BuildAll). If healthCfg is
// non-nil, a Supervisor is created and started against ctx.
func New(ctx context.Context, name string, targets []*target.Target, pol policy.Policy, healthCfg *health.Config, logger zerolog.Logger) *Group {
	g := &Group{
		Name:                name,
		Targets:             targets,
		Policy:              pol,
		healthChecksEnabled: healthCfg != nil,
	}
	if healthCfg != nil {
		g.supervisor = health.New(name, targets, *healthCfg, logger)
		g.supervisor.Start(ctx)
	}
	return g
}

// Eligible returns the targets currently considered live: all targets when
// health checks are disabled, otherwise only those with healthy == true.
func (g *Group) Eligible() []*target.Target {
	if !g.healthChecksEnabled {
		out := make([]*target.Target, len(g.Targets))
		copy(out, g.Targets)
		return out
	}
	out := make([]*target.Target, 0, len(g.Targets))
	for _, t := range g.Targets {
		if t.IsHealthy() {
			out = append(out, t)
		}
	}
	return out
}

// RecordRequestStart marks the start of a dispatch to t for metrics
// purposes (active connection count feeding the LRT policy).
func (g *Group) RecordRequestStart(t *target.Target) {
	t.RecordRequestStart()
}

// RecordRequestEnd marks the end of a dispatch to t. ttfbMs is ignored when
// success is false.
func (g *Group) RecordRequestEnd(t *target.Target, success bool, ttfbMs float64) {
	t.RecordRequestEnd(success, ttfbMs)
}

// Shutdown stops the group's health supervisor, if any.
func (g *Group) Shutdown() {
	if g.supervisor != nil {
		g.supervisor.Stop()
	}
}
