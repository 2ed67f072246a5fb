// Package config loads and validates the startup configuration bundle: a
// YAML file overlaid by environment variables. Parsing configuration,
// process bootstrap, and their surrounding collaborators are deliberately
// outside the load-balancer core (spec.md §1) but still need a concrete,
// idiomatic home.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

// PolicyKind identifies a target-selection algorithm.
type PolicyKind string

const (
	PolicyRoundRobin PolicyKind = "round_robin"
	PolicyWeighted   PolicyKind = "weighted"
	PolicySticky     PolicyKind = "sticky"
	PolicyLRT        PolicyKind = "lrt"
)

// EndpointSpec names one backend endpoint before DNS resolution.
type EndpointSpec struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURI string `yaml:"base_uri,omitempty"`
}

// HealthCheckSpec carries the optional health-check parameters for a
// group. A nil *HealthCheckSpec on a GroupSpec means health checks are
// disabled for that group.
type HealthCheckSpec struct {
	Path             string `yaml:"path,omitempty"`
	IntervalMs       int    `yaml:"interval_ms,omitempty"`
	SucceedThreshold int    `yaml:"succeed_threshold,omitempty"`
	FailureThreshold int    `yaml:"failure_threshold,omitempty"`
}

// GroupSpec describes one target group.
type GroupSpec struct {
	Name        string           `yaml:"name"`
	Policy      PolicyKind       `yaml:"policy"`
	Endpoints   []EndpointSpec   `yaml:"endpoints"`
	Weights     map[string]int   `yaml:"weights,omitempty"`
	HealthCheck *HealthCheckSpec `yaml:"health_check,omitempty"`
}

// RuleSpec describes one listener rule.
type RuleSpec struct {
	PathPrefix string `yaml:"path_prefix"`
	Rewrite    string `yaml:"rewrite,omitempty"`
	Group      string `yaml:"group"`
}

// Config holds the full validated startup bundle.
type Config struct {
	ListenerPort        int         `yaml:"listener_port" env:"LISTENER_PORT"`
	ConnectionTimeoutMs int         `yaml:"connection_timeout_ms" env:"CONNECTION_TIMEOUT_MS"`
	ProxyHeadersEnabled bool        `yaml:"proxy_headers_enabled" env:"PROXY_HEADERS_ENABLED"`
	SessionTTLMs        int         `yaml:"session_ttl_ms" env:"SESSION_TTL_MS"`
	Groups              []GroupSpec `yaml:"groups"`
	Rules               []RuleSpec  `yaml:"rules"`
}

// Load reads configPath (if present) and overlays environment variables,
// applying defaults for anything left unset, then validates the result.
// A missing config file is not an error: the bundle falls back to
// defaults and whatever the environment supplies, matching the teacher's
// bootstrap convention.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.setDefaults()

	file, err := os.Open(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open config file %s: %w", configPath, err)
		}
	} else {
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.ListenerPort == 0 {
		c.ListenerPort = 8080
	}
	if c.ConnectionTimeoutMs == 0 {
		c.ConnectionTimeoutMs = 5000
	}
}

// Validate enforces spec.md §6's fatal-at-startup rules: missing weights
// under a weighted group, a rule referencing an unknown group, and
// malformed endpoints or rewrite prefixes.
func (c *Config) Validate() error {
	if c.ListenerPort < 1 || c.ListenerPort > 65535 {
		return fmt.Errorf("listener_port must be between 1 and 65535, got %d", c.ListenerPort)
	}
	if c.ConnectionTimeoutMs <= 0 {
		return fmt.Errorf("connection_timeout_ms must be positive, got %d", c.ConnectionTimeoutMs)
	}
	if len(c.Groups) == 0 {
		return fmt.Errorf("at least one target group must be configured")
	}

	names := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("group name must not be empty")
		}
		if names[g.Name] {
			return fmt.Errorf("duplicate group name %q", g.Name)
		}
		names[g.Name] = true

		if err := validatePolicy(g.Policy); err != nil {
			return fmt.Errorf("group %q: %w", g.Name, err)
		}
		if len(g.Endpoints) == 0 {
			return fmt.Errorf("group %q: at least one endpoint is required", g.Name)
		}
		for _, ep := range g.Endpoints {
			if err := validateEndpoint(ep); err != nil {
				return fmt.Errorf("group %q: %w", g.Name, err)
			}
		}

		if g.Policy == PolicyWeighted {
			if len(g.Weights) == 0 {
				return fmt.Errorf("group %q: policy weighted requires a weight map", g.Name)
			}
			for _, ep := range g.Endpoints {
				id := EndpointID(ep)
				w, ok := g.Weights[id]
				if !ok {
					return fmt.Errorf("group %q: missing weight for endpoint %q", g.Name, id)
				}
				if w < 1 {
					return fmt.Errorf("group %q: weight for endpoint %q must be >= 1, got %d", g.Name, id, w)
				}
			}
		}

		if g.Policy == PolicySticky && c.SessionTTLMs <= 0 {
			return fmt.Errorf("group %q: policy sticky requires a positive session_ttl_ms", g.Name)
		}
	}

	if len(c.Rules) == 0 {
		return fmt.Errorf("at least one listener rule must be configured")
	}
	for _, r := range c.Rules {
		if !strings.HasPrefix(r.PathPrefix, "/") {
			return fmt.Errorf("rule path_prefix %q must start with '/'", r.PathPrefix)
		}
		if r.Rewrite != "" && !strings.HasPrefix(r.PathPrefix, r.Rewrite) {
			return fmt.Errorf("rule %q: rewrite %q must be a prefix of path_prefix", r.PathPrefix, r.Rewrite)
		}
		if !names[r.Group] {
			return fmt.Errorf("rule %q references unknown group %q", r.PathPrefix, r.Group)
		}
	}

	return nil
}

func validatePolicy(p PolicyKind) error {
	switch p {
	case PolicyRoundRobin, PolicyWeighted, PolicySticky, PolicyLRT:
		return nil
	default:
		return fmt.Errorf("unknown policy %q", p)
	}
}

func validateEndpoint(ep EndpointSpec) error {
	if ep.Host == "" {
		return fmt.Errorf("endpoint host must not be empty")
	}
	if ep.Port < 1 || ep.Port > 65535 {
		return fmt.Errorf("endpoint %s: port must be between 1 and 65535, got %d", ep.Host, ep.Port)
	}
	if ep.BaseURI != "" && !strings.HasPrefix(ep.BaseURI, "/") {
		return fmt.Errorf("endpoint %s: base_uri %q must start with '/'", ep.Host, ep.BaseURI)
	}
	return nil
}

// EndpointID is the stable key used both in a group's weight map and as the
// resolved target's id (suffixed with "#<index>" when the host resolves to
// several addresses). It is host:port, the same form operators already
// write endpoints in.
func EndpointID(ep EndpointSpec) string {
	return net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
}
