package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/netguard/internal/config"
	"github.com/tgifai/netguard/internal/cronjob"
	"github.com/tgifai/netguard/internal/gateway"
	"github.com/tgifai/netguard/internal/pkg/logs"
	"github.com/tgifai/netguard/internal/security/egress"
)

const shutdownTimeout = 10 * time.Second

var serveHwd = &ServeRunner{}

type ServeRunner struct{}

func (r *ServeRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the guard gateway with the configured policy",
		Flags:  []cli.Flag{configFlag()},
		Action: r.run,
	}
}

func (r *ServeRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		fmt.Printf("netguard is not configured yet. Run \"netguard init --config %s\" to get started.\n", cfgPath)
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}

	if err = initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}
	defer logs.Flush()

	logs.CtxInfo(ctx, "booting netguard, using config file: %s...", cfgPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	guard, err := egress.New(cfg.Guard)
	if err != nil {
		return fmt.Errorf("create egress guard: %w", err)
	}
	defer func() {
		if err := guard.Close(); err != nil {
			logs.CtxWarn(ctx, "close egress guard error: %v", err)
		}
	}()

	if installed := guard.Install(ctx); len(installed) == 0 {
		return fmt.Errorf("no transport could be guarded, check guard.transports")
	}

	scheduler := cronjob.Init(cronjob.Options{})
	enabled, err := cronjob.RegisterAuditSummary(scheduler, guard.Audit(), cfg.Guard.Audit.SummarySchedule)
	if err != nil {
		return fmt.Errorf("register audit summary: %w", err)
	}
	if !enabled {
		logs.CtxInfo(ctx, "audit summary disabled")
	}
	if err = cronjob.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	gw := gateway.NewGateway(cfg.Gateway, guard)
	if err = gw.Start(ctx); err != nil {
		cancel()
		_ = gw.Stop(context.Background())
		cronjob.Stop(context.Background())
		return fmt.Errorf("start gateway: %w", err)
	}

	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping runtime...", sig.String())
	case <-ctx.Done():
		logs.CtxInfo(ctx, "Context canceled. Stopping runtime...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err = gw.Stop(stopCtx); err != nil {
		logs.CtxError(ctx, "stop gateway error: %v", err)
	}
	cronjob.Stop(stopCtx)

	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}
