package consts

import (
	"os"
	"path/filepath"
)

const (
	NetguardDirName = ".netguard"
	ConfigFileName  = "config.yaml"
	AuditFileName   = "audit.jsonl"
	LogFileName     = "netguard.log"
)

func NetguardHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, NetguardDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(NetguardHomeDir(), ConfigFileName)
}

func DefaultAuditPath() string {
	return filepath.Join(NetguardHomeDir(), "audit", AuditFileName)
}

func DefaultLogPath() string {
	return filepath.Join(NetguardHomeDir(), "logs", LogFileName)
}
