package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/netguard/internal/security/egress"
)

const exitDenied = 2

var checkHwd = &CheckRunner{}

type CheckRunner struct{}

func (r *CheckRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Validate a URL against the egress policy without connecting",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"X"},
				Usage:   "HTTP method to report in the audit trail",
				Value:   "GET",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the decision as JSON",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Show audit log lines",
			},
		},
		Action: r.run,
	}
}

type checkOutput struct {
	Decision egress.Decision `json:"decision"`
	Reason   egress.Reason   `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
	Warning  string          `json:"warning,omitempty"`
	Method   string          `json:"method,omitempty"`
	URL      string          `json:"url,omitempty"`
}

func (r *CheckRunner) run(ctx context.Context, cmd *cli.Command) error {
	rawURL := strings.TrimSpace(cmd.Args().First())
	if rawURL == "" {
		return errors.New("a url argument is required")
	}

	cfg, err := loadOrDefault(cmd.String("config"))
	if err != nil {
		return err
	}
	if err = initQuietLogger(cfg.Logging, cmd.Bool("verbose")); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}

	guard, err := egress.New(cfg.Guard)
	if err != nil {
		return fmt.Errorf("create egress guard: %w", err)
	}
	defer guard.Close()

	res := guard.Check(egress.WithCaller(ctx, "cli.check"), cmd.String("method"), rawURL)
	out := checkOutput{
		Decision: res.Decision,
		Reason:   res.Reason,
		Message:  res.Message,
		Warning:  res.Warning,
	}
	if res.Request != nil {
		out.Method, out.URL = res.Request.Method, res.Request.RawURL
	}

	if cmd.Bool("json") {
		raw, err := sonic.MarshalString(out)
		if err != nil {
			return err
		}
		fmt.Println(raw)
	} else {
		printDecision(out)
	}

	if !res.Allowed() {
		return cli.Exit("", exitDenied)
	}
	return nil
}

func printDecision(out checkOutput) {
	if out.Decision == egress.DecisionAllow {
		cSuccess.Printf("%s %s %s\n", out.Decision, out.Method, out.URL)
	} else {
		cError.Printf("%s %s %s\n", out.Decision, out.Method, out.URL)
		fmt.Printf("  reason:  %s\n", out.Reason)
		fmt.Printf("  message: %s\n", out.Message)
	}
	if out.Warning != "" {
		cWarn.Printf("  warning: %s\n", out.Warning)
	}
}
