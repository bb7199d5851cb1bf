package egress

import (
	"fmt"
	"net/netip"
	"strings"
)

// DefaultDisallowedRanges is the canonical set of destinations untrusted code
// may never reach.
var DefaultDisallowedRanges = []string{
	"127.0.0.0/8",    // loopback
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"0.0.0.0/8",      // "this" network
	"169.254.0.0/16", // link-local, cloud metadata
	"224.0.0.0/4",    // multicast
	"240.0.0.0/4",    // reserved

	"::1/128",   // loopback
	"::/128",    // unspecified
	"fc00::/7",  // unique local
	"fe80::/10", // link-local
	"ff00::/8",  // multicast
}

// RangeSet is an ordered, immutable list of disallowed prefixes.
type RangeSet struct {
	prefixes []netip.Prefix
}

// NewRangeSet parses CIDRs (bare addresses become single-host prefixes).
// Duplicates are dropped, order is kept.
func NewRangeSet(cidrs []string) (*RangeSet, error) {
	set := &RangeSet{prefixes: make([]netip.Prefix, 0, len(cidrs))}
	seen := make(map[netip.Prefix]struct{}, len(cidrs))
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := parsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid disallowed range %q: %w", raw, err)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		set.prefixes = append(set.prefixes, p)
	}
	return set, nil
}

func parsePrefix(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := parseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Contains reports whether addr falls inside any range. Strings that do not
// parse as an address are reported as not disallowed.
func (s *RangeSet) Contains(addr string) bool {
	a, err := parseAddr(addr)
	if err != nil {
		return false
	}
	_, ok := s.Match(a)
	return ok
}

// Match returns the first prefix containing addr.
func (s *RangeSet) Match(addr netip.Addr) (netip.Prefix, bool) {
	if s == nil || !addr.IsValid() {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap().WithZone("")
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return p, true
		}
	}
	return netip.Prefix{}, false
}

func (s *RangeSet) Prefixes() []netip.Prefix {
	if s == nil {
		return nil
	}
	out := make([]netip.Prefix, len(s.prefixes))
	copy(out, s.prefixes)
	return out
}

func (s *RangeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.prefixes)
}

func parseAddr(raw string) (netip.Addr, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	return netip.ParseAddr(raw)
}

// reasonForAddr maps a disallowed address to its denial reason.
func reasonForAddr(addr netip.Addr) Reason {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsUnspecified() {
		return ReasonLocalAddress
	}
	return ReasonPrivateNetwork
}
