package egress

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Client is the outbound HTTP surface handed to untrusted code. It mirrors the
// request helpers of *http.Client.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
	Get(url string) (*http.Response, error)
	Head(url string) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
	PostForm(url string, data url.Values) (*http.Response, error)
}

// HTTPClient routes every call through the guard. The underlying transport is
// not reachable from it.
type HTTPClient struct {
	c *http.Client
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.c.Do(req)
}

func (c *HTTPClient) Get(url string) (*http.Response, error) {
	return c.c.Get(url)
}

func (c *HTTPClient) Head(url string) (*http.Response, error) {
	return c.c.Head(url)
}

func (c *HTTPClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return c.c.Post(url, contentType, body)
}

func (c *HTTPClient) PostForm(url string, data url.Values) (*http.Response, error) {
	return c.c.PostForm(url, data)
}

// CloseIdleConnections releases pooled connections.
func (c *HTTPClient) CloseIdleConnections() {
	c.c.CloseIdleConnections()
}

// NewHTTPClient returns a one-shot style client without cookie state.
func (g *Guard) NewHTTPClient() (*HTTPClient, error) {
	return g.newHTTPClient(nil)
}

// NewSession returns a client that keeps cookies across requests.
func (g *Guard) NewSession() (*HTTPClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return g.newHTTPClient(jar)
}

func (g *Guard) newHTTPClient(jar http.CookieJar) (*HTTPClient, error) {
	rt := g.roundTripper()
	if rt == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, BackboneNetHTTP)
	}

	maxRedirects := g.cfg.Client.MaxRedirects
	return &HTTPClient{c: &http.Client{
		Transport: rt,
		Jar:       jar,
		Timeout:   time.Duration(g.cfg.Client.TimeoutSec) * time.Second,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			return nil
		},
	}}, nil
}
