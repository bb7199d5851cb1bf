package egress

import (
	"fmt"
	"time"

	"github.com/tgifai/netguard/internal/consts"
)

// Policy is the immutable rule set shared by every request. It is built once
// at startup and never modified.
type Policy struct {
	Ranges            *RangeSet
	Ports             *PortSet
	LocalHosts        *HostList
	MetadataHosts     *HostList
	ResolutionFailure consts.ResolutionPolicy
	ResolveTimeout    time.Duration
}

func NewPolicy(cfg Config) (*Policy, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	ranges, err := NewRangeSet(append(append([]string{}, cfg.DisallowedRanges...), cfg.AdditionalRanges...))
	if err != nil {
		return nil, err
	}
	ports, err := NewPortSet(cfg.DangerousPorts)
	if err != nil {
		return nil, err
	}

	return &Policy{
		Ranges:            ranges,
		Ports:             ports,
		LocalHosts:        NewHostList(cfg.BlockedHosts),
		MetadataHosts:     NewHostList(cfg.MetadataHosts),
		ResolutionFailure: cfg.ResolutionFailure,
		ResolveTimeout:    time.Duration(cfg.Resolver.TimeoutMS) * time.Millisecond,
	}, nil
}

func DefaultPolicy() *Policy {
	p, err := NewPolicy(Config{})
	if err != nil {
		panic(fmt.Sprintf("default egress policy: %v", err))
	}
	return p
}

func (p *Policy) failOpen() bool {
	return p.ResolutionFailure != consts.ResolutionFailClosed
}
