// Package policy implements the pluggable target-selection algorithms:
// round-robin, weighted smooth round-robin, sticky sessions, and
// least-response-time. Each policy is constructed once per group and keeps
// its state private.
package policy

import (
	"net"
	"net/http"
	"strings"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

// ErrNoHealthyTargets is returned when the eligible set is empty, or (for
// weighted) when every eligible target has zero effective weight.
type ErrNoHealthyTargets struct{}

func (ErrNoHealthyTargets) Error() string { return "no healthy targets" }

// Context carries the per-request information a policy may need beyond the
// eligible set itself (currently: client fingerprinting for sticky).
type Context struct {
	Request *http.Request
}

// Policy picks one target out of the current eligible snapshot. Pick must
// tolerate the eligible set changing in size or membership between calls.
type Policy interface {
	Pick(eligible []*target.Target, ctx Context) (*target.Target, error)
}

// ClientFingerprint derives the sticky-session key for a request: the
// first address in X-Forwarded-For if present, else the request's peer IP
// (RemoteAddr with the ephemeral port stripped — every new TCP connection
// from the same client carries a different port, so keeping it would
// never let a session re-pin).
func ClientFingerprint(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
