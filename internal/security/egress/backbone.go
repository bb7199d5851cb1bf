package egress

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// BackboneInstaller puts the guard in front of one transport library.
type BackboneInstaller func(ctx context.Context, g *Guard) error

var (
	backboneInstallers = map[string]BackboneInstaller{
		BackboneNetHTTP: installNetHTTP,
		BackboneHertz:   installHertz,
	}
	backboneMu sync.RWMutex
)

func RegisterBackbone(name string, installer BackboneInstaller) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("backbone name is required")
	}
	if installer == nil {
		return fmt.Errorf("backbone installer cannot be nil")
	}

	backboneMu.Lock()
	defer backboneMu.Unlock()
	if _, exists := backboneInstallers[key]; exists {
		return fmt.Errorf("backbone already registered: %s", key)
	}
	backboneInstallers[key] = installer
	return nil
}

func lookupBackbone(name string) (BackboneInstaller, bool) {
	backboneMu.RLock()
	defer backboneMu.RUnlock()
	installer, ok := backboneInstallers[strings.ToLower(strings.TrimSpace(name))]
	return installer, ok
}

func installNetHTTP(ctx context.Context, g *Guard) error {
	base := newBaseTransport(g)
	rt := &guardedTransport{guard: g, next: newCompressedTransport(base, g.cfg.Client)}

	g.mu.Lock()
	g.base = base
	g.rt = rt
	g.mu.Unlock()

	if g.cfg.InstallDefaultTransport {
		if replaceDefaultTransport(rt) {
			g.audit.Record(ctx, Event{Decision: DecisionInfo, Message: "http.DefaultTransport replaced by guarded transport"})
		} else {
			g.audit.Record(ctx, Event{Decision: DecisionWarn, Message: "http.DefaultTransport already replaced by another guard, left unchanged"})
		}
	}
	return nil
}

func installHertz(_ context.Context, g *Guard) error {
	hc, err := newHertzClient(g)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.hertz = hc
	g.mu.Unlock()
	return nil
}
