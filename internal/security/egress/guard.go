package egress

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tgifai/netguard/internal/pkg/logs"
)

// Guard owns the egress policy, the audit log and the guarded transports.
type Guard struct {
	cfg       Config
	policy    *Policy
	validator *Validator
	resolver  Resolver
	audit     *AuditLog
	sinks     []AuditSink

	installOnce sync.Once

	mu        sync.RWMutex
	installed []string
	base      *http.Transport
	rt        http.RoundTripper
	hertz     *HertzClient
}

type Option func(*Guard)

// WithResolver replaces the configured resolver backend.
func WithResolver(r Resolver) Option {
	return func(g *Guard) {
		g.resolver = r
	}
}

// WithAuditLog injects a shared audit log; sinks from WithAuditSinks are
// ignored when set.
func WithAuditLog(a *AuditLog) Option {
	return func(g *Guard) {
		g.audit = a
	}
}

// WithAuditSinks replaces the default sinks (process logger plus the
// optional JSONL file).
func WithAuditSinks(sinks ...AuditSink) Option {
	return func(g *Guard) {
		g.sinks = append(g.sinks, sinks...)
	}
}

func New(cfg Config, opts ...Option) (*Guard, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	policy, err := NewPolicy(cfg)
	if err != nil {
		return nil, err
	}

	g := &Guard{cfg: cfg, policy: policy}
	for _, opt := range opts {
		opt(g)
	}

	if g.resolver == nil {
		g.resolver, err = NewResolver(cfg.Resolver)
		if err != nil {
			return nil, err
		}
	}
	g.validator = NewValidator(policy, g.resolver)

	if g.audit == nil {
		sinks := g.sinks
		if len(sinks) == 0 {
			sinks = []AuditSink{NewLogSink(logs.DefaultLogger())}
			if cfg.Audit.File != "" {
				fileSink, err := NewJSONLFileSink(cfg.Audit)
				if err != nil {
					return nil, err
				}
				sinks = append(sinks, fileSink)
			}
		}
		g.audit = NewAuditLog(NewDedupCache(cfg.Audit.DedupCapacity), sinks...)
	}
	return g, nil
}

// Check validates one request and records the decision. It never opens a
// connection.
func (g *Guard) Check(ctx context.Context, method, rawURL string) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	var res Result
	req, err := ParseRequest(method, rawURL)
	if err != nil {
		res = Result{
			Decision: DecisionBlock,
			Reason:   ReasonInvalidInput,
			Message:  err.Error(),
			Request:  &ValidationRequest{Method: normalizeMethod(method), RawURL: strings.TrimSpace(rawURL)},
			Cause:    err,
		}
	} else {
		res = g.validator.Validate(ctx, req)
	}

	g.audit.RecordResult(ctx, res)
	return res
}

// CheckValue is Check for callers holding an untyped url, such as decoded
// JSON. Anything but a string is rejected as invalid input.
func (g *Guard) CheckValue(ctx context.Context, method string, rawURL interface{}) Result {
	if s, ok := rawURL.(string); ok {
		return g.Check(ctx, method, s)
	}

	res := Result{
		Decision: DecisionBlock,
		Reason:   ReasonInvalidInput,
		Message:  fmt.Sprintf("%v: got %T", ErrNonStringInput, rawURL),
		Request:  &ValidationRequest{Method: normalizeMethod(method), RawURL: fmt.Sprint(rawURL)},
		Cause:    ErrNonStringInput,
	}
	if ctx == nil {
		ctx = context.Background()
	}
	g.audit.RecordResult(ctx, res)
	return res
}

// Install guards every configured transport. Only the first call has any
// effect; transports that are unknown or fail to install are skipped and
// audited. It returns the names of the guarded transports.
func (g *Guard) Install(ctx context.Context) []string {
	if ctx == nil {
		ctx = context.Background()
	}
	g.installOnce.Do(func() {
		g.install(ctx)
	})
	return g.Installed()
}

func (g *Guard) install(ctx context.Context) {
	var installed []string
	for _, name := range g.cfg.Transports {
		installer, ok := lookupBackbone(name)
		if !ok {
			g.audit.Record(ctx, Event{Decision: DecisionWarn, Message: fmt.Sprintf("transport %s is not available, skipped", name)})
			continue
		}
		if err := installer(ctx, g); err != nil {
			g.audit.Record(ctx, Event{Decision: DecisionError, Message: fmt.Sprintf("install guard for %s failed: %v", name, err)})
			continue
		}
		installed = append(installed, name)
		g.audit.Record(ctx, Event{Decision: DecisionInfo, Message: fmt.Sprintf("guard installed for %s", name)})
	}

	if len(installed) == 0 {
		g.audit.Record(ctx, Event{Decision: DecisionWarn, Message: "no transport could be guarded"})
	}

	g.mu.Lock()
	g.installed = installed
	g.mu.Unlock()
}

func (g *Guard) Installed() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.installed...)
}

// HertzClient returns the guarded hertz client.
func (g *Guard) HertzClient() (*HertzClient, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.hertz == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, BackboneHertz)
	}
	return g.hertz, nil
}

func (g *Guard) roundTripper() http.RoundTripper {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rt
}

func (g *Guard) Policy() *Policy {
	return g.policy
}

func (g *Guard) Audit() *AuditLog {
	return g.audit
}

func (g *Guard) Config() Config {
	return g.cfg
}

func (g *Guard) Close() error {
	g.mu.RLock()
	base := g.base
	g.mu.RUnlock()
	if base != nil {
		base.CloseIdleConnections()
	}

	if err := g.audit.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	return nil
}
