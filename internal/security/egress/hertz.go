package egress

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
)

// HertzClient is the guarded hertz client. Redirects are not followed.
type HertzClient struct {
	c *client.Client
}

func (h *HertzClient) Do(ctx context.Context, req *protocol.Request, resp *protocol.Response) error {
	return h.c.Do(ctx, req, resp)
}

func newHertzClient(g *Guard) (*HertzClient, error) {
	timeout := time.Duration(g.cfg.Client.TimeoutSec) * time.Second
	c, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithClientReadTimeout(timeout),
		client.WithDialer(&guardedDialer{Dialer: standard.NewDialer(), guard: g}),
	)
	if err != nil {
		return nil, fmt.Errorf("create hertz client: %w", err)
	}
	c.Use(g.hertzMiddleware)
	return &HertzClient{c: c}, nil
}

func (g *Guard) hertzMiddleware(next client.Endpoint) client.Endpoint {
	return func(ctx context.Context, req *protocol.Request, resp *protocol.Response) error {
		res := g.Check(ctx, string(req.Method()), req.URI().String())
		if err := res.Err(); err != nil {
			return err
		}

		if len(req.Header.UserAgent()) == 0 && g.cfg.Client.UserAgent != "" {
			req.Header.SetUserAgentBytes([]byte(g.cfg.Client.UserAgent))
		}
		if len(req.Header.Peek("Accept-Language")) == 0 && g.cfg.Client.AcceptLanguage != "" {
			req.Header.Set("Accept-Language", g.cfg.Client.AcceptLanguage)
		}
		return next(ctx, req, resp)
	}
}

// guardedDialer re-checks the peer of every hertz connection against the
// disallowed ranges. The TLS handshake is lazy, so a denied peer never sees a
// byte of the request.
type guardedDialer struct {
	network.Dialer
	guard *Guard
}

func (d *guardedDialer) DialConnection(nw, address string, timeout time.Duration, tlsConfig *tls.Config) (network.Conn, error) {
	conn, err := d.Dialer.DialConnection(nw, address, timeout, tlsConfig)
	if err != nil {
		return nil, err
	}
	if err := d.checkPeer(nw, conn.RemoteAddr()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *guardedDialer) DialTimeout(nw, address string, timeout time.Duration, tlsConfig *tls.Config) (net.Conn, error) {
	conn, err := d.Dialer.DialTimeout(nw, address, timeout, tlsConfig)
	if err != nil {
		return nil, err
	}
	if err := d.checkPeer(nw, conn.RemoteAddr()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *guardedDialer) checkPeer(nw string, peer net.Addr) error {
	if peer == nil {
		return nil
	}
	return d.guard.checkConnectAddr(nw, peer.String())
}
