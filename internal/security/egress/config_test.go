package egress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tgifai/netguard/internal/consts"
)

func TestConfigNormalizeDefaults(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Normalize())

	require.Equal(t, DefaultDisallowedRanges, cfg.DisallowedRanges)
	require.Equal(t, DefaultDangerousPorts, cfg.DangerousPorts)
	require.Equal(t, DefaultLocalHosts, cfg.BlockedHosts)
	require.Equal(t, DefaultMetadataHosts, cfg.MetadataHosts)
	require.Equal(t, consts.ResolutionFailOpen, cfg.ResolutionFailure)
	require.Equal(t, []string{BackboneNetHTTP, BackboneHertz}, cfg.Transports)
	require.Equal(t, ResolverSystem, cfg.Resolver.Backend)
	require.Equal(t, defaultResolveTimeoutMS, cfg.Resolver.TimeoutMS)
	require.Equal(t, DefaultDedupCapacity, cfg.Audit.DedupCapacity)
	require.Equal(t, defaultMaxRedirects, cfg.Client.MaxRedirects)
	require.Equal(t, defaultUserAgent, cfg.Client.UserAgent)
}

func TestConfigNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		DangerousPorts:    []int{},
		ResolutionFailure: " CLOSED ",
		Transports:        []string{" Hertz ", "hertz"},
		Resolver:          ResolverConfig{Backend: "DNS", Servers: []string{"1.1.1.1"}},
	}
	require.NoError(t, cfg.Normalize())
	require.Empty(t, cfg.DangerousPorts)
	require.Equal(t, consts.ResolutionFailClosed, cfg.ResolutionFailure)
	require.Equal(t, []string{BackboneHertz}, cfg.Transports)
	require.Equal(t, ResolverDNS, cfg.Resolver.Backend)

	p, err := NewPolicy(cfg)
	require.NoError(t, err)
	require.Empty(t, p.Ports.List())
	require.False(t, p.failOpen())
}

func TestConfigNormalizeRejectsInvalid(t *testing.T) {
	require.Error(t, (&Config{ResolutionFailure: "maybe"}).Normalize())
	require.Error(t, (&Config{Resolver: ResolverConfig{Backend: "doh"}}).Normalize())

	_, err := NewPolicy(Config{DangerousPorts: []int{70000}})
	require.Error(t, err)
	_, err = NewPolicy(Config{AdditionalRanges: []string{"nope"}})
	require.Error(t, err)
	_, err = New(Config{ResolutionFailure: "maybe"})
	require.Error(t, err)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, len(DefaultDisallowedRanges), p.Ranges.Len())
	require.Equal(t, DefaultDangerousPorts, p.Ports.List())
	require.True(t, p.failOpen())
}

func TestHostListMatch(t *testing.T) {
	l := NewHostList([]string{"Localhost.", "[::1]", "metadata.google.internal", ""})
	require.Equal(t, 3, l.Len())

	require.True(t, l.Match("localhost"))
	require.True(t, l.Match("api.localhost"))
	require.True(t, l.Match("::1"))
	require.True(t, l.Match("METADATA.google.internal."))
	require.False(t, l.Match("notlocalhost"))
	require.False(t, l.Match("google.internal"))
	require.False(t, (*HostList)(nil).Match("localhost"))
}

func TestInstallDefaultTransport(t *testing.T) {
	prevTransport, prevClient := http.DefaultTransport, http.DefaultClient.Transport
	t.Cleanup(func() {
		http.DefaultTransport = prevTransport
		http.DefaultClient.Transport = prevClient
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := loopbackConfig()
	cfg.Transports = []string{BackboneNetHTTP}
	cfg.InstallDefaultTransport = true
	g, sink := newTestGuard(t, cfg, publicResolver)
	g.Install(context.Background())

	_, err := http.Get("http://10.9.9.9/")
	require.ErrorIs(t, err, ErrDenied)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 1, sink.Count(DecisionBlock))
	require.Equal(t, 1, sink.Count(DecisionAllow))
}
