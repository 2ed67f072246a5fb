// Package forwarder builds and issues the upstream HTTP request for a
// chosen target, relays the response byte-faithfully, and classifies
// upstream failures into the client-visible status taxonomy from spec.md
// §4.5/§7.
package forwarder

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/target"
)

// hopByHopHeaders are stripped from both the inbound request and the
// upstream response, per RFC 7230 §6.1 and spec.md §4.5.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Upgrade",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
}

// Kind enumerates the forwarding error taxonomy from spec.md §7.
type Kind int

const (
	// KindConnectFailure covers connection refused, DNS failure, and reset
	// before any response was received.
	KindConnectFailure Kind = iota
	// KindTimeout covers the configured connection timeout being exceeded.
	KindTimeout
)

// Error wraps a classified upstream failure. It never carries a body; the
// client-visible response for any Error is an empty body with Status set.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Options configures a Forwarder instance. It is built once from the
// validated configuration bundle.
type Options struct {
	ConnectionTimeout   time.Duration
	ProxyHeadersEnabled bool
	ListenerPort        int
}

// Forwarder issues the upstream request for one (request, target, path)
// triple and relays the response.
type Forwarder struct {
	opts   Options
	client *http.Client
	log    zerolog.Logger
}

// New builds a Forwarder. The underlying http.Client carries no timeout of
// its own; each request's deadline is governed by a context derived from
// opts.ConnectionTimeout so that a 504 can be distinguished from a 502.
func New(opts Options, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		opts:   opts,
		client: &http.Client{},
		log:    logger,
	}
}

// Forward issues the upstream call for r against t at rewrittenPath (the
// path already produced by rules.Matcher.Match, before the target's
// BaseURI is joined on) and relays the response onto w. It returns a
// classified *Error on failure; the caller is responsible for translating
// that into the client-visible status (see Error.Status) with an empty
// body. metrics, if non-nil, is invoked exactly once on every return path
// (including a failure to even build the upstream request) with whether
// the upstream call succeeded and the observed time-to-first-byte, so the
// target's active-connection count started by the caller always balances.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, t *target.Target, rewrittenPath string, metrics func(success bool, ttfbMs float64)) error {
	ctx, cancel := context.WithTimeout(r.Context(), f.opts.ConnectionTimeout)
	defer cancel()

	upstreamReq, err := f.buildRequest(ctx, r, t, rewrittenPath)
	if err != nil {
		if metrics != nil {
			metrics(false, 0)
		}
		return &Error{Kind: KindConnectFailure, Status: http.StatusBadGateway, Err: err}
	}

	start := time.Now()
	resp, err := f.client.Do(upstreamReq)
	if err != nil {
		if metrics != nil {
			metrics(false, 0)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return &Error{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Err: err}
		}
		return &Error{Kind: KindConnectFailure, Status: http.StatusBadGateway, Err: err}
	}
	defer resp.Body.Close()

	ttfb := time.Since(start)
	if metrics != nil {
		metrics(true, float64(ttfb.Milliseconds()))
	}

	relayResponse(w, resp)
	return nil
}

func (f *Forwarder) buildRequest(ctx context.Context, r *http.Request, t *target.Target, rewrittenPath string) (*http.Request, error) {
	path := joinPath(t.BaseURI, rewrittenPath)

	upstreamURL := *r.URL
	upstreamURL.Scheme = "http"
	upstreamURL.Host = t.Addr()
	upstreamURL.Path = path
	upstreamURL.RawPath = ""
	// RawQuery is preserved verbatim; fragments are never forwarded (URL
	// fragments are never sent over the wire by net/http clients anyway).

	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		return nil, err
	}
	upstreamReq.Header = cloneHeaderWithoutHopByHop(r.Header)
	upstreamReq.Host = t.Addr()
	upstreamReq.ContentLength = r.ContentLength

	if f.opts.ProxyHeadersEnabled {
		f.setProxyHeaders(upstreamReq, r)
	}

	return upstreamReq, nil
}

func (f *Forwarder) setProxyHeaders(upstreamReq, original *http.Request) {
	clientIP := clientIPOf(original)

	if existing := upstreamReq.Header.Get("X-Forwarded-For"); existing != "" {
		upstreamReq.Header.Set("X-Forwarded-For", existing+", "+clientIP)
	} else {
		upstreamReq.Header.Set("X-Forwarded-For", clientIP)
	}
	upstreamReq.Header.Set("X-Forwarded-Host", original.Host)
	upstreamReq.Header.Set("X-Forwarded-Port", strconv.Itoa(f.opts.ListenerPort))
	upstreamReq.Header.Set("X-Forwarded-Proto", "http")
	upstreamReq.Header.Set("X-Real-IP", clientIP)
	upstreamReq.Header.Set("X-Request-Id", uuid.NewString())
}

func clientIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func cloneHeaderWithoutHopByHop(h http.Header) http.Header {
	out := h.Clone()
	for _, hdr := range hopByHopHeaders {
		out.Del(hdr)
	}
	return out
}

func relayResponse(w http.ResponseWriter, resp *http.Response) {
	dst := w.Header()
	for k, vv := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}

// joinPath concatenates a target's base URI with a rewritten path
// remainder, per spec.md §4.1 ("base '/v1' + remainder '/users' ->
// '/v1/users'"). If base is empty the remainder is returned unchanged.
func joinPath(base, remainder string) string {
	if base == "" {
		return remainder
	}
	base = strings.TrimSuffix(base, "/")
	if remainder == "/" {
		return base
	}
	return base + remainder
}
