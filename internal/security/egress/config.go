package egress

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/gg/gslice"

	"github.com/tgifai/netguard/internal/consts"
)

const (
	BackboneNetHTTP = "net/http"
	BackboneHertz   = "hertz"

	ResolverSystem = "system"
	ResolverDNS    = "dns"

	defaultResolveTimeoutMS = 3000
	defaultClientTimeoutSec = 30
	defaultMaxRedirects     = 5
	defaultUserAgent        = "netguard/1.0"
	defaultAcceptLanguage   = "zh-CN,zh;q=0.9,en;q=0.8"

	// DefaultSummarySchedule is written by "netguard init"; an empty schedule
	// disables the audit summary job.
	DefaultSummarySchedule = "@every 10m"
)

// Config is the "guard" section of the netguard configuration. Nil lists fall
// back to the built-in defaults; an explicit empty list disables that check.
type Config struct {
	DisallowedRanges        []string                `yaml:"disallowed_ranges"`
	AdditionalRanges        []string                `yaml:"additional_ranges"`
	DangerousPorts          []int                   `yaml:"dangerous_ports"`
	BlockedHosts            []string                `yaml:"blocked_hosts"`
	MetadataHosts           []string                `yaml:"metadata_hosts"`
	ResolutionFailure       consts.ResolutionPolicy `yaml:"resolution_failure"` // open, closed
	Transports              []string                `yaml:"transports"`
	InstallDefaultTransport bool                    `yaml:"install_default_transport"`
	Resolver                ResolverConfig          `yaml:"resolver"`
	Audit                   AuditConfig             `yaml:"audit"`
	Client                  ClientConfig            `yaml:"client"`
}

type ResolverConfig struct {
	Backend   string   `yaml:"backend"` // system, dns
	Servers   []string `yaml:"servers"` // dns backend only, host[:port]
	TimeoutMS int      `yaml:"timeout_ms"`
}

type AuditConfig struct {
	DedupCapacity   int    `yaml:"dedup_capacity"`
	File            string `yaml:"file"` // optional jsonl audit trail
	MaxSize         int    `yaml:"max_size"` // MB
	MaxBackups      int    `yaml:"max_backups"`
	MaxAge          int    `yaml:"max_age"` // days
	SummarySchedule string `yaml:"summary_schedule"`
}

type ClientConfig struct {
	TimeoutSec         int    `yaml:"timeout_sec"`
	MaxRedirects       int    `yaml:"max_redirects"`
	UserAgent          string `yaml:"user_agent"`
	AcceptLanguage     string `yaml:"accept_language"`
	DisableCompression bool   `yaml:"disable_compression"`
}

func DefaultConfig() Config {
	var cfg Config
	_ = cfg.Normalize()
	return cfg
}

// Normalize fills defaults and rejects values that cannot be built into a
// policy.
func (c *Config) Normalize() error {
	if c == nil {
		return errors.New("guard config cannot be nil")
	}

	if c.DisallowedRanges == nil {
		c.DisallowedRanges = append([]string{}, DefaultDisallowedRanges...)
	}
	if c.DangerousPorts == nil {
		c.DangerousPorts = append([]int{}, DefaultDangerousPorts...)
	}
	if c.BlockedHosts == nil {
		c.BlockedHosts = append([]string{}, DefaultLocalHosts...)
	}
	if c.MetadataHosts == nil {
		c.MetadataHosts = append([]string{}, DefaultMetadataHosts...)
	}
	if len(c.AdditionalRanges) == 0 {
		c.AdditionalRanges = nil
	}
	if len(c.Resolver.Servers) == 0 {
		c.Resolver.Servers = nil
	}

	c.ResolutionFailure = consts.ResolutionPolicy(strings.ToLower(strings.TrimSpace(string(c.ResolutionFailure))))
	switch c.ResolutionFailure {
	case "":
		c.ResolutionFailure = consts.ResolutionFailOpen
	case consts.ResolutionFailOpen, consts.ResolutionFailClosed:
	default:
		return fmt.Errorf("invalid resolution_failure: %s", c.ResolutionFailure)
	}

	if c.Transports == nil {
		c.Transports = []string{BackboneNetHTTP, BackboneHertz}
	}
	c.Transports = gslice.Uniq(gslice.Map(c.Transports, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}))

	c.Resolver.Backend = strings.ToLower(strings.TrimSpace(c.Resolver.Backend))
	if c.Resolver.Backend == "" {
		c.Resolver.Backend = ResolverSystem
	}
	if !gslice.Contains([]string{ResolverSystem, ResolverDNS}, c.Resolver.Backend) {
		return fmt.Errorf("invalid resolver.backend: %s", c.Resolver.Backend)
	}
	if c.Resolver.TimeoutMS <= 0 {
		c.Resolver.TimeoutMS = defaultResolveTimeoutMS
	}

	if c.Audit.DedupCapacity <= 0 {
		c.Audit.DedupCapacity = DefaultDedupCapacity
	}
	c.Audit.File = strings.TrimSpace(c.Audit.File)
	c.Audit.SummarySchedule = strings.TrimSpace(c.Audit.SummarySchedule)

	if c.Client.TimeoutSec <= 0 {
		c.Client.TimeoutSec = defaultClientTimeoutSec
	}
	if c.Client.MaxRedirects <= 0 {
		c.Client.MaxRedirects = defaultMaxRedirects
	}
	if strings.TrimSpace(c.Client.UserAgent) == "" {
		c.Client.UserAgent = defaultUserAgent
	}
	if strings.TrimSpace(c.Client.AcceptLanguage) == "" {
		c.Client.AcceptLanguage = defaultAcceptLanguage
	}
	return nil
}
