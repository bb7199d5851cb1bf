package egress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
)

const resolvConfPath = "/etc/resolv.conf"

var (
	errNoAddresses = errors.New("no addresses found")
	errNoSuchHost  = errors.New("no such host")
)

// Resolver returns every address a hostname resolves to.
type Resolver interface {
	LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, host string) ([]netip.Addr, error)

func (f ResolverFunc) LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	return f(ctx, host)
}

// NewResolver builds the configured backend.
func NewResolver(cfg ResolverConfig) (Resolver, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultResolveTimeoutMS * time.Millisecond
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", ResolverSystem:
		return &systemResolver{r: net.DefaultResolver}, nil
	case ResolverDNS:
		return newDNSResolver(cfg.Servers, timeout)
	default:
		return nil, fmt.Errorf("unsupported resolver backend: %s", cfg.Backend)
	}
}

type systemResolver struct {
	r *net.Resolver
}

func (s *systemResolver) LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := s.r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, errNoAddresses
	}
	return addrs, nil
}

// dnsResolver queries A and AAAA records directly, bypassing /etc/hosts and
// the libc resolver. Each query starts at a random server and falls through
// the rest on error.
type dnsResolver struct {
	client  *dns.Client
	servers []string
}

func newDNSResolver(servers []string, timeout time.Duration) (*dnsResolver, error) {
	if len(servers) == 0 {
		conf, err := dns.ClientConfigFromFile(resolvConfPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", resolvConfPath, err)
		}
		for _, s := range conf.Servers {
			servers = append(servers, net.JoinHostPort(s, conf.Port))
		}
	}

	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
		}
		normalized = append(normalized, s)
	}
	if len(normalized) == 0 {
		return nil, errors.New("dns resolver requires at least one server")
	}

	return &dnsResolver{
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		servers: normalized,
	}, nil
}

// LookupAddrs queries A and AAAA records. Answers from either family are
// returned even when the other query fails; an error is reported only when
// neither family produced an address.
func (d *dnsResolver) LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	var (
		addrs    []netip.Addr
		firstErr error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answer, err := d.exchange(ctx, host, qtype)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, rr := range answer {
			switch rec := rr.(type) {
			case *dns.A:
				if a, ok := netip.AddrFromSlice(rec.A); ok {
					addrs = append(addrs, a.Unmap())
				}
			case *dns.AAAA:
				if a, ok := netip.AddrFromSlice(rec.AAAA); ok {
					addrs = append(addrs, a)
				}
			}
		}
	}
	if len(addrs) > 0 {
		return addrs, nil
	}
	if firstErr == nil {
		firstErr = errNoAddresses
	}
	return nil, fmt.Errorf("dns: %s: %w", host, firstErr)
}

func (d *dnsResolver) exchange(ctx context.Context, host string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	var lastErr error
	start := fastrand.Intn(len(d.servers))
	for i := range d.servers {
		server := d.servers[(start+i)%len(d.servers)]
		r, _, err := d.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		switch r.Rcode {
		case dns.RcodeSuccess:
			return r.Answer, nil
		case dns.RcodeNameError:
			return nil, errNoSuchHost
		default:
			lastErr = fmt.Errorf("%s query: response code %s", dns.TypeToString[qtype], dns.RcodeToString[r.Rcode])
		}
	}
	return nil, lastErr
}

// boundedResolver caps every lookup with a timeout and collapses concurrent
// lookups of the same host into one.
type boundedResolver struct {
	next    Resolver
	timeout time.Duration
	group   singleflight.Group
}

func newBoundedResolver(next Resolver, timeout time.Duration) *boundedResolver {
	if timeout <= 0 {
		timeout = defaultResolveTimeoutMS * time.Millisecond
	}
	return &boundedResolver{next: next, timeout: timeout}
}

func (b *boundedResolver) LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	start := time.Now()
	ch := b.group.DoChan(host, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		return b.next.LookupAddrs(lookupCtx, host)
	})

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		observeResolve(res.Err, time.Since(start))
		if res.Err != nil {
			return nil, res.Err
		}
		addrs, _ := res.Val.([]netip.Addr)
		return addrs, nil
	case <-timer.C:
		err := fmt.Errorf("resolve %s: timed out after %s", host, b.timeout)
		observeResolve(err, time.Since(start))
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
