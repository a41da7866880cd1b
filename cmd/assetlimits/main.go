// Command assetlimits runs the asset download limiting service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/plaenen/assetlimits/pkg/config"
	"github.com/plaenen/assetlimits/pkg/runner"
)

var version = "dev"

func main() {
	ctx, stop := runner.SignalContext(context.Background())
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "assetlimits:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "assetlimits",
		Usage:   "limit how many assets an account may download",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files to load before reading the environment",
				Value: cli.NewStringSlice(".env"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the limit change consumer",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and print the schema version",
				Action: migrate,
			},
			{
				Name:  "set-limit",
				Usage: "publish a limit change for an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Usage: "account id", Required: true},
					&cli.IntFlag{Name: "limit", Usage: "new download limit", Required: true},
				},
				Action: setLimit,
			},
		},
	}
}

// loadConfig loads the configuration and installs the JSON logger as default.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	return cfg, logger, nil
}
