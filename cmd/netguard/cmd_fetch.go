package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tgifai/netguard/internal/security/egress"
)

var fetchHwd = &FetchRunner{}

type FetchRunner struct{}

func (r *FetchRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Perform a request through the guarded client and print the response body",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"X"},
				Value:   "GET",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "Request header as \"Key: Value\", repeatable",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Request body",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Timeout in seconds",
				Value: 30,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Show audit log lines and response headers",
			},
		},
		Action: r.run,
	}
}

func (r *FetchRunner) run(ctx context.Context, cmd *cli.Command) error {
	rawURL := strings.TrimSpace(cmd.Args().First())
	if rawURL == "" {
		return errors.New("a url argument is required")
	}
	verbose := cmd.Bool("verbose")

	cfg, err := loadOrDefault(cmd.String("config"))
	if err != nil {
		return err
	}
	if err = initQuietLogger(cfg.Logging, verbose); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}

	guard, err := egress.New(cfg.Guard)
	if err != nil {
		return fmt.Errorf("create egress guard: %w", err)
	}
	defer guard.Close()
	guard.Install(ctx)

	client, err := guard.NewHTTPClient()
	if err != nil {
		return err
	}

	timeout := time.Duration(cmd.Int("timeout")) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(egress.WithCaller(ctx, "cli.fetch"), timeout)
	defer cancel()

	var body io.Reader
	if data := cmd.String("data"); data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cmd.String("method")), rawURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for _, h := range cmd.StringSlice("header") {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("invalid header %q, expected \"Key: Value\"", h)
		}
		req.Header.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, egress.ErrDenied) {
			cError.Fprintf(os.Stderr, "BLOCK %s %s\n", req.Method, rawURL)
			fmt.Fprintf(os.Stderr, "  reason:  %s\n", egress.ReasonOf(err))
			return cli.Exit("", exitDenied)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if verbose {
		cDim.Fprintf(os.Stderr, "%s %s\n", resp.Proto, resp.Status)
		for k := range resp.Header {
			cDim.Fprintf(os.Stderr, "%s: %s\n", k, resp.Header.Get(k))
		}
	}

	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return nil
}
