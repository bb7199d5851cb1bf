package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/netguard/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "netguard",
		Usage: "Egress policy guard for outbound HTTP",
		Commands: []*cli.Command{
			serveHwd.cmd(),
			checkHwd.cmd(),
			fetchHwd.cmd(),
			initHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
