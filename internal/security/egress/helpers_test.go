package egress

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) Count(d Decision) int {
	n := 0
	for _, e := range s.Events() {
		if e.Decision == d {
			n++
		}
	}
	return n
}

// staticResolver answers from a fixed table; unknown names fail.
func staticResolver(table map[string][]string) Resolver {
	return ResolverFunc(func(_ context.Context, host string) ([]netip.Addr, error) {
		raw, ok := table[host]
		if !ok {
			return nil, errors.New("no such host")
		}
		out := make([]netip.Addr, 0, len(raw))
		for _, s := range raw {
			out = append(out, netip.MustParseAddr(s))
		}
		return out, nil
	})
}

func failingResolver(err error) Resolver {
	return ResolverFunc(func(context.Context, string) ([]netip.Addr, error) {
		return nil, err
	})
}

func newTestGuard(t *testing.T, cfg Config, r Resolver) (*Guard, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	g, err := New(cfg, WithResolver(r), WithAuditSinks(sink))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g, sink
}

// loopbackConfig lets tests reach httptest servers on 127.0.0.1 while still
// blocking 10.0.0.0/8 and the name "localhost".
func loopbackConfig() Config {
	return Config{
		DisallowedRanges: []string{"10.0.0.0/8"},
		DangerousPorts:   []int{},
		BlockedHosts:     []string{"localhost"},
		MetadataHosts:    []string{},
		Transports:       []string{BackboneNetHTTP, BackboneHertz},
	}
}
