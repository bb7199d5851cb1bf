package main

import (
	"path/filepath"
	"testing"

	"github.com/tgifai/netguard/internal/config"
	"github.com/tgifai/netguard/internal/security/egress"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig(true)
	if len(cfg.Gateway.APIKey) != apiKeyLength {
		t.Fatalf("expected %d char api key, got %q", apiKeyLength, cfg.Gateway.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Guard.Audit.SummarySchedule != egress.DefaultSummarySchedule {
		t.Errorf("unexpected summary schedule %q", cfg.Guard.Audit.SummarySchedule)
	}
	if defaultConfig(false).Gateway.APIKey != "" {
		t.Error("api key should be empty when disabled")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := loadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Guard.DisallowedRanges) != len(egress.DefaultDisallowedRanges) {
		t.Errorf("expected default ranges, got %v", cfg.Guard.DisallowedRanges)
	}
}

func TestLoadOrDefaultReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := defaultConfig(false)
	cfg.Guard.DangerousPorts = []int{2222}
	if err := config.Init(path, cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := config.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := loadOrDefault(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Guard.DangerousPorts) != 1 || got.Guard.DangerousPorts[0] != 2222 {
		t.Errorf("expected ports from file, got %v", got.Guard.DangerousPorts)
	}
}
