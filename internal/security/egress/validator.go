package egress

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Validator decides whether a classified request may leave the process. It
// holds no mutable state and is safe for concurrent use.
type Validator struct {
	policy   *Policy
	resolver Resolver
}

func NewValidator(policy *Policy, resolver Resolver) *Validator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if resolver == nil {
		resolver = &systemResolver{r: net.DefaultResolver}
	}
	return &Validator{
		policy:   policy,
		resolver: newBoundedResolver(resolver, policy.ResolveTimeout),
	}
}

func (v *Validator) Policy() *Policy {
	return v.policy
}

// Validate runs the checks in order: scheme, host presence, local and metadata
// hosts, explicit port, then the address check (literal range match or name
// resolution).
func (v *Validator) Validate(ctx context.Context, req *ValidationRequest) Result {
	if req == nil {
		return Result{Decision: DecisionBlock, Reason: ReasonInvalidInput, Message: "nil request", Cause: ErrMalformedURL}
	}

	if req.Scheme != "http" && req.Scheme != "https" {
		return deny(req, ReasonUnsupportedScheme, fmt.Sprintf("scheme %q is not allowed", req.Scheme))
	}

	if req.Host == "" {
		r := deny(req, ReasonInvalidInput, "url has no host")
		r.Cause = ErrMalformedURL
		return r
	}

	if v.policy.LocalHosts.Match(req.Host) {
		return deny(req, ReasonLocalAddress, "local address")
	}
	if v.policy.MetadataHosts.Match(req.Host) {
		return deny(req, ReasonPrivateNetwork, "cloud metadata endpoint")
	}

	if req.ExplicitPort && v.policy.Ports.Contains(req.Port) {
		return deny(req, ReasonDangerousPort, fmt.Sprintf("dangerous port %d", req.Port))
	}

	if req.Literal {
		return v.checkLiteral(req)
	}
	return v.checkResolved(ctx, req)
}

func (v *Validator) checkLiteral(req *ValidationRequest) Result {
	addr, err := parseAddr(req.Host)
	if err != nil {
		// Literal-looking hosts that are not addresses cannot be dialed as
		// such; the dialer re-checks whatever they end up connecting to.
		return allow(req)
	}
	if prefix, ok := v.policy.Ranges.Match(addr); ok {
		return deny(req, reasonForAddr(addr), fmt.Sprintf("address %s is in disallowed range %s", addr, prefix))
	}
	return allow(req)
}

func (v *Validator) checkResolved(ctx context.Context, req *ValidationRequest) Result {
	addrs, err := v.resolver.LookupAddrs(ctx, req.Host)
	if err == nil && len(addrs) == 0 {
		err = errNoAddresses
	}
	if err != nil {
		if v.policy.failOpen() {
			r := allow(req)
			r.Reason = ReasonResolutionFailed
			r.Warning = fmt.Sprintf("resolve %s failed, allowed: %v", req.Host, err)
			r.Cause = err
			return r
		}
		r := deny(req, ReasonResolutionFailed, fmt.Sprintf("resolve %s failed: %v", req.Host, err))
		r.Cause = err
		return r
	}

	for _, addr := range addrs {
		if r, denied := v.checkResolvedAddr(req, addr); denied {
			return r
		}
	}
	return allow(req)
}

func (v *Validator) checkResolvedAddr(req *ValidationRequest, addr netip.Addr) (Result, bool) {
	addr = addr.Unmap().WithZone("")
	if v.policy.LocalHosts.Match(addr.String()) {
		return deny(req, ReasonLocalAddress, fmt.Sprintf("%s resolves to local address %s", req.Host, addr)), true
	}
	if v.policy.MetadataHosts.Match(addr.String()) {
		return deny(req, ReasonPrivateNetwork, fmt.Sprintf("%s resolves to metadata endpoint %s", req.Host, addr)), true
	}
	if prefix, ok := v.policy.Ranges.Match(addr); ok {
		return deny(req, reasonForAddr(addr), fmt.Sprintf("%s resolves to %s in disallowed range %s", req.Host, addr, prefix)), true
	}
	return Result{}, false
}
