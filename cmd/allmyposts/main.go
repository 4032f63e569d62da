package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"

	"github.com/CrispStrobe/allmyposts/internal/app"
	"github.com/CrispStrobe/allmyposts/internal/config"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "allmyposts",
		Usage:   "one feed for your Bluesky and Mastodon accounts",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity (debug, info, warn, error)",
			Value:   "warn",
			EnvVars: []string{"LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		feedCmd,
		searchCmd,
		affinityCmd,
	}

	return app.Run(args)
}

// setup loads the environment configuration and a stderr logger.
func setup(cctx *cli.Context) (*config.Config, *slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cctx.String("log-level")))); err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger, nil
}

func platforms(cctx *cli.Context, cfg *config.Config, logger *slog.Logger) (*app.Platforms, error) {
	p, err := app.NewPlatforms(cctx.Context, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create platform clients: %w", err)
	}
	return p, nil
}
