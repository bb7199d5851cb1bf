package egress

import (
	"strings"

	"github.com/bytedance/gg/gslice"
)

var (
	// DefaultLocalHosts are names and literals that always mean "this machine".
	DefaultLocalHosts = []string{"localhost", "127.0.0.1", "::1"}

	// DefaultMetadataHosts are cloud instance metadata endpoints.
	DefaultMetadataHosts = []string{
		"169.254.169.254",          // aws, azure, most clouds
		"metadata.google.internal", // gcp
		"100.100.100.200",          // alibaba cloud
	}
)

// HostList matches hostnames exactly or as a dot-suffix, so "localhost" also
// covers "api.localhost".
type HostList struct {
	hosts map[string]struct{}
}

func NewHostList(entries []string) *HostList {
	normalized := gslice.Uniq(gslice.Map(entries, normalizeListHost))

	l := &HostList{hosts: make(map[string]struct{}, len(normalized))}
	for _, h := range normalized {
		if h == "" {
			continue
		}
		l.hosts[h] = struct{}{}
	}
	return l
}

func normalizeListHost(raw string) string {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.TrimPrefix(h, "[")
	h = strings.TrimSuffix(h, "]")
	return strings.Trim(h, ".")
}

func (l *HostList) Match(host string) bool {
	if l == nil || len(l.hosts) == 0 {
		return false
	}
	host = normalizeListHost(host)
	if host == "" {
		return false
	}
	if _, ok := l.hosts[host]; ok {
		return true
	}
	if isLiteralHost(host) {
		return false
	}
	for blocked := range l.hosts {
		if strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

func (l *HostList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.hosts)
}
