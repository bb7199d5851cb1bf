package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tgifai/netguard/internal/security/egress"
)

const (
	defaultGatewayBind    = "127.0.0.1:8088"
	defaultRequestTimeout = 60
	defaultMaxBodyMiB     = 5
	defaultMaxFetches     = 16
)

// Validate fills defaults in place and rejects unusable values.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	c.Gateway.Bind = strings.TrimSpace(c.Gateway.Bind)
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = defaultGatewayBind
	}
	if _, _, err := net.SplitHostPort(c.Gateway.Bind); err != nil {
		return fmt.Errorf("invalid gateway.bind %q: %w", c.Gateway.Bind, err)
	}
	c.Gateway.MetricsBind = strings.TrimSpace(c.Gateway.MetricsBind)
	if c.Gateway.MetricsBind != "" {
		if _, _, err := net.SplitHostPort(c.Gateway.MetricsBind); err != nil {
			return fmt.Errorf("invalid gateway.metrics_bind %q: %w", c.Gateway.MetricsBind, err)
		}
		if c.Gateway.MetricsBind == c.Gateway.Bind {
			return errors.New("gateway.metrics_bind must differ from gateway.bind")
		}
	}
	if c.Gateway.RequestTimeout <= 0 {
		c.Gateway.RequestTimeout = defaultRequestTimeout
	}
	if c.Gateway.MaxBodyMiB <= 0 {
		c.Gateway.MaxBodyMiB = defaultMaxBodyMiB
	}
	if c.Gateway.MaxConcurrentFetches <= 0 {
		c.Gateway.MaxConcurrentFetches = defaultMaxFetches
	}
	c.Gateway.APIKey = strings.TrimSpace(c.Gateway.APIKey)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if err := c.Guard.Normalize(); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	if _, err := egress.NewPolicy(c.Guard); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	return nil
}
