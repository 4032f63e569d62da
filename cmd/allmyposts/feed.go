package main

import (
	"fmt"
	"io"
	"os"
	"time"

	cli "github.com/urfave/cli/v2"

	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/export"
)

var feedCmd = &cli.Command{
	Name:  "feed",
	Usage: "print or export the unified feed of one or two accounts",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bsky",
			Usage:   "Bluesky handle or DID",
			EnvVars: []string{"BLUESKY_HANDLE"},
		},
		&cli.StringFlag{
			Name:    "mastodon",
			Usage:   "Mastodon handle as @user@host",
			EnvVars: []string{"MASTODON_HANDLE"},
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "page through the whole history",
		},
		&cli.BoolFlag{
			Name:  "replies",
			Usage: "fetch replies from upstream",
		},
		&cli.StringFlag{
			Name:  "query",
			Usage: "only posts containing this text",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "newest, oldest, likes, reposts or engagement",
			Value: string(domain.SortNewest),
		},
		&cli.BoolFlag{
			Name:  "media",
			Usage: "only posts with images",
		},
		&cli.BoolFlag{
			Name:  "hide-replies",
			Usage: "hide replies from the view",
		},
		&cli.BoolFlag{
			Name:  "hide-reposts",
			Usage: "hide reposts, upstream and in the view",
		},
		&cli.Int64Flag{
			Name:  "min-likes",
			Usage: "only posts with at least this many likes",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "text, json, csv, markdown, urls or html",
			Value: "text",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write to this file instead of stdout",
		},
	},
	Action: runFeed,
}

func runFeed(cctx *cli.Context) error {
	cfg, logger, err := setup(cctx)
	if err != nil {
		return err
	}

	sortBy, err := domain.ParseSortBy(cctx.String("sort"))
	if err != nil {
		return err
	}
	format := cctx.String("format")
	var exportFormat export.Format
	if format != "text" {
		if exportFormat, err = export.ParseFormat(format); err != nil {
			return err
		}
	}

	p, err := platforms(cctx, cfg, logger)
	if err != nil {
		return err
	}

	session, err := domain.NewSession(p.Clients(), domain.SessionConfig{
		Identifiers: map[domain.Platform]string{
			domain.PlatformBluesky:  cctx.String("bsky"),
			domain.PlatformMastodon: cctx.String("mastodon"),
		},
		HideReplies: !cctx.Bool("replies"),
		HideReposts: cctx.Bool("hide-reposts"),
		Filters: domain.Filters{
			SearchTerm:  cctx.String("query"),
			SortBy:      sortBy,
			HasMedia:    cctx.Bool("media"),
			HideReplies: cctx.Bool("hide-replies"),
			HideReposts: cctx.Bool("hide-reposts"),
			MinLikes:    cctx.Int64("min-likes"),
		},
		Dedupe: cfg.Dedupe(),
		OnPage: func(v domain.View) {
			logger.Info("page loaded", "posts", len(v.Posts), "items", len(v.Items))
		},
	}, logger)
	if err != nil {
		return err
	}

	ctx := cctx.Context
	if err := session.Open(ctx); err != nil {
		return err
	}
	if cctx.Bool("all") {
		if err := session.LoadAll(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Warn("feed is incomplete", "error", err)
		}
	}
	for platform, err := range session.Errors() {
		fmt.Fprintf(os.Stderr, "%s: %v\n", platform, err)
	}

	var w io.Writer = os.Stdout
	if path := cctx.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "text" {
		return printFeed(w, session)
	}

	handle := cctx.String("bsky")
	if handle == "" {
		handle = cctx.String("mastodon")
	}
	return export.Write(w, exportFormat, handle, session.View().Posts, time.Now())
}
