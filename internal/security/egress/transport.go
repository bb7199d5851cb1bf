package egress

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"syscall"
	"time"
)

// guardedTransport validates every request, redirect hops included, before
// handing it to the base transport.
type guardedTransport struct {
	guard *Guard
	next  http.RoundTripper
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil {
		closeRequestBody(req)
		return nil, fmt.Errorf("%w: request has no url", ErrMalformedURL)
	}

	res := t.guard.Check(req.Context(), req.Method, req.URL.String())
	if err := res.Err(); err != nil {
		closeRequestBody(req)
		return nil, err
	}
	return t.next.RoundTrip(req)
}

func closeRequestBody(req *http.Request) {
	if req != nil && req.Body != nil {
		_ = req.Body.Close()
	}
}

// newBaseTransport builds the only transport that opens sockets for guarded
// clients. Environment proxies are ignored and every dial is re-checked
// against the disallowed ranges. Compression is negotiated by
// compressedTransport, never by the stdlib.
func newBaseTransport(g *Guard) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   g.dialControl,
	}
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}
}

// dialControl runs after name resolution and before connect, so it sees the
// address actually dialed even if DNS changed since validation.
func (g *Guard) dialControl(network, address string, _ syscall.RawConn) error {
	return g.checkConnectAddr(network, address)
}

// checkConnectAddr denies a connection to address when it falls inside a
// disallowed range. Non-literal hosts pass; they are checked after resolution.
func (g *Guard) checkConnectAddr(network, address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	prefix, ok := g.policy.Ranges.Match(addr)
	if !ok {
		return nil
	}

	e := &DeniedError{
		Reason:  reasonForAddr(addr),
		Method:  "DIAL",
		URL:     network + "://" + address,
		Message: fmt.Sprintf("connect to %s in disallowed range %s", addr.Unmap(), prefix),
	}
	g.audit.Block(context.Background(), e.Method, e.URL, e.Reason, e.Message)
	return e
}

var defaultTransportOnce sync.Once

// replaceDefaultTransport points http.DefaultTransport and http.DefaultClient
// at rt. It takes effect once per process.
func replaceDefaultTransport(rt http.RoundTripper) bool {
	replaced := false
	defaultTransportOnce.Do(func() {
		http.DefaultTransport = rt
		http.DefaultClient.Transport = rt
		replaced = true
	})
	return replaced
}
