// Package listener accepts inbound HTTP requests and drives the rest of
// the pipeline: RuleMatcher -> TargetGroup.Eligible() -> SelectionPolicy ->
// Forwarder -> response.
package listener

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/forwarder"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/group"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/policy"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/rules"
)

// Listener is the single ingress HTTP handler for the proxy.
type Listener struct {
	matcher   *rules.Matcher
	groups    map[string]*group.Group
	forwarder *forwarder.Forwarder
	log       zerolog.Logger
}

// New builds a Listener. groups must contain an entry for every group name
// referenced by a rule in matcher; this is enforced at config-validation
// time, not here.
func New(matcher *rules.Matcher, groups map[string]*group.Group, fwd *forwarder.Forwarder, logger zerolog.Logger) *Listener {
	return &Listener{matcher: matcher, groups: groups, forwarder: fwd, log: logger}
}

// ServeHTTP implements http.Handler.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rule, rewrittenPath, err := l.matcher.Match(r.URL.Path)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	grp := l.groups[rule.GroupName]
	eligible := grp.Eligible()
	if len(eligible) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	chosen, err := grp.Policy.Pick(eligible, policy.Context{Request: r})
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	grp.RecordRequestStart(chosen)
	err = l.forwarder.Forward(w, r, chosen, rewrittenPath, func(success bool, ttfbMs float64) {
		grp.RecordRequestEnd(chosen, success, ttfbMs)
	})
	if err != nil {
		var fe *forwarder.Error
		if errors.As(err, &fe) {
			l.log.Warn().Str("group", rule.GroupName).Str("target", chosen.ID).Int("status", fe.Status).Msg("upstream forward failed")
			w.WriteHeader(fe.Status)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}
}
