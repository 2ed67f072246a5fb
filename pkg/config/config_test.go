package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

const validRoundRobinYAML = `
listener_port: 8080
connection_timeout_ms: 5000
groups:
  - name: web
    policy: round_robin
    endpoints:
      - host: 127.0.0.1
        port: 8081
      - host: 127.0.0.1
        port: 8082
rules:
  - path_prefix: /api
    group: web
`

func TestLoad_ValidConfigRoundTrips(t *testing.T) {
	path := writeTempConfig(t, validRoundRobinYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenerPort != 8080 {
		t.Fatalf("expected listener_port 8080, got %d", cfg.ListenerPort)
	}
	if len(cfg.Groups) != 1 || len(cfg.Groups[0].Endpoints) != 2 {
		t.Fatalf("expected 1 group with 2 endpoints, got %+v", cfg.Groups)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected validation to fail once defaults have no groups configured")
	}
}

func TestValidate_RejectsDuplicateGroupNames(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Groups = append(cfg.Groups, cfg.Groups[0])
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate group name")
	}
}

func TestValidate_RejectsUnknownRuleGroup(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Rules[0].Group = "does-not-exist"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for rule referencing unknown group")
	}
}

func TestValidate_RejectsMalformedEndpoint(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Groups[0].Endpoints[0].Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestValidate_RejectsBadRewritePrefix(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Rules[0].PathPrefix = "/api"
	cfg.Rules[0].Rewrite = "/other"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when rewrite is not a prefix of path_prefix")
	}
}

func TestValidate_RejectsRuleWithoutLeadingSlash(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Rules[0].PathPrefix = "api"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for path_prefix missing leading slash")
	}
}

func TestValidate_WeightedPolicyRequiresCompleteWeightMap(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Groups[0].Policy = PolicyWeighted
	cfg.Groups[0].Weights = map[string]int{"127.0.0.1:8081": 1}
	// server on 8082 has no weight entry
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing weight entry")
	}
}

func TestValidate_WeightedPolicyAcceptsCompleteWeightMap(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Groups[0].Policy = PolicyWeighted
	cfg.Groups[0].Weights = map[string]int{
		"127.0.0.1:8081": 1,
		"127.0.0.1:8082": 2,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_StickyPolicyRequiresPositiveSessionTTL(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Groups[0].Policy = PolicySticky
	cfg.SessionTTLMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sticky policy without session_ttl_ms")
	}
}

func TestValidate_RejectsUnknownPolicy(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Groups[0].Policy = "made_up"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown policy kind")
	}
}

func TestValidate_RejectsNoRules(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Rules = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero rules")
	}
}

func TestEndpointID_IsHostPort(t *testing.T) {
	got := EndpointID(EndpointSpec{Host: "127.0.0.1", Port: 8081})
	if got != "127.0.0.1:8081" {
		t.Fatalf("expected 127.0.0.1:8081, got %s", got)
	}
}

func baseValidConfig() *Config {
	cfg := &Config{
		ListenerPort:        8080,
		ConnectionTimeoutMs: 5000,
		Groups: []GroupSpec{
			{
				Name:   "web",
				Policy: PolicyRoundRobin,
				Endpoints: []EndpointSpec{
					{Host: "127.0.0.1", Port: 8081},
					{Host: "127.0.0.1", Port: 8082},
				},
			},
		},
		Rules: []RuleSpec{
			{PathPrefix: "/api", Group: "web"},
		},
	}
	return cfg
}
