package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/netguard/internal/config"
	"github.com/tgifai/netguard/internal/consts"
	"github.com/tgifai/netguard/internal/pkg/logs"
)

var (
	cSuccess = color.New(color.FgGreen)
	cWarn    = color.New(color.FgYellow)
	cError   = color.New(color.FgRed, color.Bold)
	cDim     = color.New(color.FgHiBlack)
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the config file",
		Value:   consts.DefaultConfigPath(),
	}
}

// loadOrDefault reads path, falling back to built-in defaults when the file
// does not exist so one-off commands work before "netguard init".
func loadOrDefault(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config error: %w", err)
	}

	cfg = &config.Config{}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg config.LoggingConfig) error {
	return logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}

// initQuietLogger keeps one-off commands readable: audit lines only reach
// the terminal with --verbose.
func initQuietLogger(cfg config.LoggingConfig, verbose bool) error {
	if !verbose {
		cfg.Level = "error"
		cfg.Output = "stdout"
	}
	return initLogger(cfg)
}
