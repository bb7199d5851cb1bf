package egress

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/hertz/pkg/protocol"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func installedGuard(t *testing.T, cfg Config) (*Guard, *recordingSink) {
	t.Helper()
	g, sink := newTestGuard(t, cfg, publicResolver)
	g.Install(context.Background())
	return g, sink
}

func TestInstallOnce(t *testing.T) {
	g, sink := newTestGuard(t, loopbackConfig(), publicResolver)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Install(context.Background())
		}()
	}
	wg.Wait()

	require.Equal(t, []string{BackboneNetHTTP, BackboneHertz}, g.Installed())
	require.Equal(t, 2, sink.Count(DecisionInfo))
}

func TestInstallSkipsUnknownAndFailingBackbones(t *testing.T) {
	_ = RegisterBackbone("broken-for-test", func(context.Context, *Guard) error {
		return errors.New("library missing")
	})

	cfg := loopbackConfig()
	cfg.Transports = []string{"urllib", "broken-for-test", BackboneNetHTTP}
	g, sink := newTestGuard(t, cfg, publicResolver)

	require.Equal(t, []string{BackboneNetHTTP}, g.Install(context.Background()))
	require.Equal(t, 1, sink.Count(DecisionWarn))
	require.Equal(t, 1, sink.Count(DecisionError))
	require.Equal(t, 1, sink.Count(DecisionInfo))

	_, err := g.HertzClient()
	require.ErrorIs(t, err, ErrNotInstalled)
}

func TestInstallNothingAvailable(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Transports = []string{}
	g, sink := newTestGuard(t, cfg, publicResolver)

	require.Empty(t, g.Install(context.Background()))
	require.Equal(t, 1, sink.Count(DecisionWarn))

	_, err := g.NewHTTPClient()
	require.ErrorIs(t, err, ErrNotInstalled)
}

func TestRegisterBackbone(t *testing.T) {
	require.Error(t, RegisterBackbone(" ", func(context.Context, *Guard) error { return nil }))
	require.Error(t, RegisterBackbone("nil-installer", nil))
	require.Error(t, RegisterBackbone("NET/HTTP", func(context.Context, *Guard) error { return nil }))
}

func TestHTTPClientAllowsAndDispatches(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	g, sink := installedGuard(t, loopbackConfig())
	c, err := g.NewHTTPClient()
	require.NoError(t, err)

	resp, err := c.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "ok", string(body))
	got := <-headers
	require.Equal(t, defaultUserAgent, got.Get("User-Agent"))
	require.Equal(t, defaultAcceptLanguage, got.Get("Accept-Language"))

	require.Equal(t, 1, sink.Count(DecisionAllow))
	var allow Event
	for _, e := range sink.Events() {
		if e.Decision == DecisionAllow {
			allow = e
		}
	}
	require.Equal(t, http.MethodGet, allow.Method)
	require.Equal(t, srv.URL+"/ping", allow.URL)
}

func TestHTTPClientDeniedRequestNeverReachesServer(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	g, sink := installedGuard(t, loopbackConfig())
	c, err := g.NewHTTPClient()
	require.NoError(t, err)

	u, _ := url.Parse(srv.URL)
	_, err = c.Post("http://localhost:"+u.Port()+"/", "text/plain", strings.NewReader("secret"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDenied))
	require.Equal(t, ReasonLocalAddress, ReasonOf(err))
	require.Equal(t, int64(0), hits.Load())
	require.Equal(t, 1, sink.Count(DecisionBlock))
}

func TestHTTPClientRedirectToPrivateIsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://10.1.2.3/secret", http.StatusFound)
	}))
	defer srv.Close()

	g, sink := installedGuard(t, loopbackConfig())
	c, err := g.NewHTTPClient()
	require.NoError(t, err)

	_, err = c.Get(srv.URL)
	require.Error(t, err)
	require.Equal(t, ReasonPrivateNetwork, ReasonOf(err))
	require.Equal(t, 1, sink.Count(DecisionAllow))
	require.Equal(t, 1, sink.Count(DecisionBlock))
}

func TestHTTPClientRedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	g, _ := installedGuard(t, loopbackConfig())
	c, err := g.NewHTTPClient()
	require.NoError(t, err)

	_, err = c.Get(srv.URL + "/")
	require.Error(t, err)
	require.Contains(t, err.Error(), "too many redirects")
}

func TestHTTPClientDecompressesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := kgzip.NewWriter(w)
		_, _ = zw.Write([]byte(strings.Repeat("netguard ", 10)))
		_ = zw.Close()
	}))
	defer srv.Close()

	g, _ := installedGuard(t, loopbackConfig())
	c, err := g.NewHTTPClient()
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("netguard ", 10), string(body))
	require.Empty(t, resp.Header.Get("Content-Encoding"))
}

func TestSessionKeepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		case "/me":
			c, err := r.Cookie("sid")
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(c.Value))
		}
	}))
	defer srv.Close()

	g, _ := installedGuard(t, loopbackConfig())
	s, err := g.NewSession()
	require.NoError(t, err)

	resp, err := s.PostForm(srv.URL+"/login", url.Values{"user": {"demo"}})
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = s.Get(srv.URL + "/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "abc", string(body))

	// a plain client has no cookie state
	c, err := g.NewHTTPClient()
	require.NoError(t, err)
	resp, err = c.Head(srv.URL + "/me")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDialControlRechecksConnectedAddress(t *testing.T) {
	g, sink := newTestGuard(t, Config{}, publicResolver)

	err := g.dialControl("tcp", "127.0.0.1:443", nil)
	require.True(t, errors.Is(err, ErrDenied))
	require.Equal(t, ReasonLocalAddress, ReasonOf(err))

	err = g.dialControl("tcp6", "[fd00::5]:80", nil)
	require.Equal(t, ReasonPrivateNetwork, ReasonOf(err))

	require.NoError(t, g.dialControl("tcp", "93.184.216.34:443", nil))
	require.Equal(t, 2, sink.Count(DecisionBlock))
}

// rebindingGuard validates "localhost" against a public answer while the
// socket still lands on loopback, as after a DNS rebind.
func rebindingGuard(t *testing.T) (*Guard, *recordingSink) {
	t.Helper()
	cfg := Config{
		DisallowedRanges: []string{"127.0.0.0/8", "::1/128"},
		DangerousPorts:   []int{},
		BlockedHosts:     []string{},
		MetadataHosts:    []string{},
		Transports:       []string{BackboneNetHTTP, BackboneHertz},
	}
	g, sink := newTestGuard(t, cfg, staticResolver(map[string][]string{
		"localhost": {"93.184.216.34"},
	}))
	g.Install(context.Background())
	return g, sink
}

func countingServer(t *testing.T) (*atomic.Int32, string) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("secret"))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &hits, "http://localhost:" + u.Port() + "/admin"
}

func dialBlocks(sink *recordingSink) int {
	n := 0
	for _, e := range sink.Events() {
		if e.Decision == DecisionBlock && e.Method == "DIAL" {
			n++
		}
	}
	return n
}

func TestHTTPClientDeniesRebindAtDial(t *testing.T) {
	hits, target := countingServer(t)
	g, sink := rebindingGuard(t)

	require.True(t, g.Check(context.Background(), http.MethodGet, target).Allowed())

	c, err := g.NewHTTPClient()
	require.NoError(t, err)
	resp, err := c.Get(target)
	if resp != nil {
		resp.Body.Close()
	}
	require.True(t, errors.Is(err, ErrDenied))
	require.Equal(t, ReasonLocalAddress, ReasonOf(err))
	require.Zero(t, hits.Load())
	require.Positive(t, dialBlocks(sink))
}

func TestHertzClientDeniesRebindAtDial(t *testing.T) {
	hits, target := countingServer(t)
	g, sink := rebindingGuard(t)

	hc, err := g.HertzClient()
	require.NoError(t, err)

	req, resp := &protocol.Request{}, &protocol.Response{}
	req.SetRequestURI(target)
	req.SetMethod(http.MethodGet)
	require.Error(t, hc.Do(context.Background(), req, resp))
	require.Zero(t, hits.Load())
	require.Positive(t, dialBlocks(sink))
}

func TestHTTPClientWithoutCompression(t *testing.T) {
	encodings := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encodings <- r.Header.Get("Accept-Encoding")
		_, _ = w.Write([]byte("plain"))
	}))
	defer srv.Close()

	cfg := loopbackConfig()
	cfg.Client.DisableCompression = true
	g, _ := installedGuard(t, cfg)
	c, err := g.NewHTTPClient()
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "plain", string(body))
	require.Empty(t, <-encodings)
}

func TestHertzClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello " + r.Header.Get("Accept-Language")))
	}))
	defer srv.Close()

	g, sink := installedGuard(t, loopbackConfig())
	hc, err := g.HertzClient()
	require.NoError(t, err)

	req, resp := &protocol.Request{}, &protocol.Response{}
	req.SetRequestURI(srv.URL + "/hi")
	req.SetMethod(http.MethodGet)
	require.NoError(t, hc.Do(context.Background(), req, resp))
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Equal(t, "hello "+defaultAcceptLanguage, string(resp.Body()))

	denied, deniedResp := &protocol.Request{}, &protocol.Response{}
	denied.SetRequestURI("http://10.0.0.8/internal")
	denied.SetMethod(http.MethodGet)
	err = hc.Do(context.Background(), denied, deniedResp)
	require.True(t, errors.Is(err, ErrDenied))
	require.Equal(t, ReasonPrivateNetwork, ReasonOf(err))

	require.Equal(t, 1, sink.Count(DecisionAllow))
	require.Equal(t, 1, sink.Count(DecisionBlock))
}
