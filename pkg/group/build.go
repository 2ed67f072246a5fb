package group

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/config"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/health"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/policy"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

// BuildAll resolves every configured group's endpoints to targets,
// constructs its policy exactly once, and starts its health supervisor (if
// configured). It implements spec.md §9's "DNS at startup only" and
// "policy is created once at startup" rules.
func BuildAll(ctx context.Context, specs []config.GroupSpec, sessionTTLMs int, logger zerolog.Logger) (map[string]*Group, error) {
	groups := make(map[string]*Group, len(specs))
	for _, spec := range specs {
		g, err := build(ctx, spec, sessionTTLMs, logger)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", spec.Name, err)
		}
		groups[spec.Name] = g
	}
	return groups, nil
}

func build(ctx context.Context, spec config.GroupSpec, sessionTTLMs int, logger zerolog.Logger) (*Group, error) {
	healthEnabled := spec.HealthCheck != nil

	targets, order, weights, err := resolveTargets(spec, healthEnabled)
	if err != nil {
		return nil, err
	}

	pol, err := buildPolicy(spec, order, weights, sessionTTLMs)
	if err != nil {
		return nil, err
	}

	var healthCfg *health.Config
	if healthEnabled {
		healthCfg = &health.Config{
			Path:             spec.HealthCheck.Path,
			Interval:         time.Duration(spec.HealthCheck.IntervalMs) * time.Millisecond,
			SucceedThreshold: spec.HealthCheck.SucceedThreshold,
			FailureThreshold: spec.HealthCheck.FailureThreshold,
		}
	}

	return New(ctx, spec.Name, targets, pol, healthCfg, logger), nil
}

// resolveTargets performs the one-time DNS resolution for a group's
// endpoints (spec.md §9: "DNS at startup only"): one Target per resolved
// address. An endpoint that resolves to a single address keeps the plain
// host:port id operators write in their weight maps; one that resolves to
// several addresses (a round-robin DNS name) gets one suffixed id per
// address, each inheriting that endpoint's configured weight.
func resolveTargets(spec config.GroupSpec, healthEnabled bool) ([]*target.Target, []string, map[string]int, error) {
	var targets []*target.Target
	var order []string
	weights := make(map[string]int, len(spec.Endpoints))

	resolver := net.DefaultResolver
	for _, ep := range spec.Endpoints {
		baseID := config.EndpointID(ep)
		ips, err := resolver.LookupIPAddr(context.Background(), ep.Host)
		if err != nil || len(ips) == 0 {
			return nil, nil, nil, fmt.Errorf("resolving endpoint %s: %w", baseID, err)
		}
		for i, ip := range ips {
			id := baseID
			if len(ips) > 1 {
				id = fmt.Sprintf("%s#%d", baseID, i)
			}
			targets = append(targets, target.New(id, ip.IP.String(), ep.Port, ep.BaseURI, healthEnabled))
			order = append(order, id)
			if w, ok := spec.Weights[baseID]; ok {
				weights[id] = w
			}
		}
	}
	return targets, order, weights, nil
}

func buildPolicy(spec config.GroupSpec, order []string, weights map[string]int, sessionTTLMs int) (policy.Policy, error) {
	switch spec.Policy {
	case config.PolicyRoundRobin:
		return policy.NewRoundRobin(), nil
	case config.PolicyWeighted:
		return policy.NewWeighted(order, weights), nil
	case config.PolicySticky:
		return policy.NewSticky(time.Duration(sessionTTLMs) * time.Millisecond), nil
	case config.PolicyLRT:
		return policy.NewLRT(), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", spec.Policy)
	}
}
