package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/netguard/internal/config"
	"github.com/tgifai/netguard/internal/consts"
	"github.com/tgifai/netguard/internal/pkg/utils"
	"github.com/tgifai/netguard/internal/security/egress"
)

const apiKeyLength = 32

var initHwd = &InitRunner{}

type InitRunner struct{}

func (r *InitRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config file",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing config (the old file is kept as a backup)",
			},
			&cli.BoolFlag{
				Name:  "no-api-key",
				Usage: "Leave the gateway API unauthenticated",
			},
		},
		Action: r.run,
	}
}

func (r *InitRunner) run(_ context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")
	if _, err := os.Stat(cfgPath); err == nil && !cmd.Bool("force") {
		cWarn.Printf("  Config already exists at %s, pass --force to overwrite\n", cfgPath)
		return nil
	}

	cfg := defaultConfig(!cmd.Bool("no-api-key"))
	if err := config.Init(cfgPath, cfg); err != nil {
		cError.Printf("  ✗ Failed to build config: %v\n", err)
		return err
	}
	if err := config.Save(); err != nil {
		cError.Printf("  ✗ Failed to write config: %v\n", err)
		return err
	}

	cSuccess.Printf("  ✓ Created %s\n", cfgPath)
	if cfg.Gateway.APIKey != "" {
		cDim.Printf("  API key: %s\n", cfg.Gateway.APIKey)
	}
	fmt.Println()
	cSuccess.Printf("  All set! Run \"netguard serve --config %s\" to start.\n", cfgPath)
	return nil
}

func defaultConfig(withAPIKey bool) *config.Config {
	cfg := &config.Config{
		Gateway: config.GatewayConfig{
			Bind:           "127.0.0.1:8088",
			RequestTimeout: 60,
		},
		Logging: config.LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "both",
			File:       consts.DefaultLogPath(),
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Guard: egress.Config{
			Audit: egress.AuditConfig{
				File:            consts.DefaultAuditPath(),
				MaxSize:         50,
				MaxBackups:      5,
				MaxAge:          30,
				SummarySchedule: egress.DefaultSummarySchedule,
			},
		},
	}
	if withAPIKey {
		cfg.Gateway.APIKey = utils.RandStr(apiKeyLength)
	}
	return cfg
}
