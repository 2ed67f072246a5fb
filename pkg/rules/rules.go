// Package rules resolves an inbound request path to a target group and a
// rewritten upstream path, using longest-prefix-first matching with
// declaration-order tie-breaks.
package rules

import (
	"errors"
	"sort"
	"strings"
)

// ErrNoRule is returned when no configured rule's prefix matches the path.
// It surfaces to the client as a 404.
var ErrNoRule = errors.New("no rule matched path")

// Rule is one (path prefix, rewrite prefix, group) triple.
type Rule struct {
	PathPrefix string
	Rewrite    string
	GroupName  string

	declOrder int
}

// Matcher holds the precomputed, length-descending rule table for a
// listener. Build it once at startup via New.
type Matcher struct {
	rules []Rule
}

// New sorts rules by prefix length descending, breaking ties by the order
// they were declared in (the order they appear in the input slice).
func New(rules []Rule) *Matcher {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	for i := range ordered {
		ordered[i].declOrder = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		li, lj := len(ordered[i].PathPrefix), len(ordered[j].PathPrefix)
		if li != lj {
			return li > lj
		}
		return ordered[i].declOrder < ordered[j].declOrder
	})
	return &Matcher{rules: ordered}
}

// Match returns the first (longest-prefix, then first-declared) rule whose
// prefix matches path, along with the forwarded path remainder after
// stripping rule.Rewrite. path must already be decoded and start with '/'.
func (m *Matcher) Match(path string) (Rule, string, error) {
	for _, r := range m.rules {
		if !prefixMatches(r.PathPrefix, path) {
			continue
		}
		remainder := strings.TrimPrefix(path, r.Rewrite)
		if remainder == "" {
			remainder = "/"
		} else if remainder[0] != '/' {
			remainder = "/" + remainder
		}
		return r, remainder, nil
	}
	return Rule{}, "", ErrNoRule
}

// prefixMatches reports whether prefix matches path per spec.md §4.1: equal
// to the path, or a proper prefix immediately followed by '/' or EOF. A
// prefix that itself ends in '/' (such as the catch-all "/") already ends on
// a boundary and matches every path it is a prefix of.
func prefixMatches(prefix, path string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
