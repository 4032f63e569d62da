package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	cli "github.com/urfave/cli/v2"

	"github.com/CrispStrobe/allmyposts/internal/app"
	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/stream"
)

var searchCmd = &cli.Command{
	Name:  "search",
	Usage: "search posts across the accounts you follow",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "query",
			Aliases:  []string{"q"},
			Usage:    "search text",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "bsky-handle",
			Usage:   "your Bluesky handle; results are limited to accounts it follows",
			EnvVars: []string{"BLUESKY_HANDLE"},
		},
		&cli.StringFlag{
			Name:    "mastodon-handle",
			Usage:   "your Mastodon handle, for the affinity index",
			EnvVars: []string{"MASTODON_HANDLE"},
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "bestMatch, likes or newest",
			Value: string(domain.SearchBestMatch),
		},
		&cli.StringFlag{
			Name:    "server",
			Usage:   "search stream URL of a running server (ws://host:port/api/search/stream); searches locally when empty",
			EnvVars: []string{"ALLMYPOSTS_SERVER"},
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the result as JSON",
		},
	},
	Action: runSearch,
}

func runSearch(cctx *cli.Context) error {
	cfg, logger, err := setup(cctx)
	if err != nil {
		return err
	}
	sortBy, err := domain.ParseSearchSort(cctx.String("sort"))
	if err != nil {
		return err
	}

	ctx := cctx.Context
	req := domain.SearchRequest{
		Query:       cctx.String("query"),
		Identifiers: identifiers(cctx.String("bsky-handle"), cctx.String("mastodon-handle")),
	}

	p, err := platforms(cctx, cfg, logger)
	if err != nil {
		return err
	}

	var idx *domain.AffinityIndex
	if sortBy == domain.SearchBestMatch {
		cache, closer, err := app.OpenCache(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer closer.Close()

		builder := domain.NewAffinityBuilder(p.Fetchers(), domain.NewAffinityCache(cache, cfg.AffinityTTL), cfg.AffinityPageLimit, logger)
		if idx, err = builder.Build(ctx, domain.AffinityRequest{Identifiers: req.Identifiers}); err != nil {
			return err
		}
		for _, w := range idx.Warnings {
			fmt.Fprintf(os.Stderr, "note: %v\n", w)
		}
	}

	var events <-chan domain.SearchEvent
	if server := cctx.String("server"); server != "" {
		if events, err = stream.NewSubscriber(server, logger).Subscribe(ctx, req); err != nil {
			return err
		}
	} else {
		events = domain.NewSearcher(p.Fetchers(), p.Bluesky, cfg.SearchPageLimit, logger).Stream(ctx, req)
	}

	res := domain.CollectSearch(events, sortBy, cfg.Ranker(idx))
	for platform, msg := range res.Errors {
		fmt.Fprintf(os.Stderr, "%s: %s\n", platformLabel(platform), msg)
	}
	if !res.Closed && ctx.Err() != nil {
		return ctx.Err()
	}

	if cctx.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	counts := make([]string, 0, len(res.Counts))
	for _, platform := range domain.Platforms {
		counts = append(counts, fmt.Sprintf("%s %d", platform, res.Counts[platform]))
	}
	fmt.Printf("%d results (%s)\n\n", len(res.Posts), strings.Join(counts, ", "))
	printPosts(os.Stdout, res.Posts)
	return nil
}

func identifiers(bsky, mastodon string) map[domain.Platform]string {
	ids := make(map[domain.Platform]string)
	if bsky != "" {
		ids[domain.PlatformBluesky] = bsky
	}
	if mastodon != "" {
		ids[domain.PlatformMastodon] = mastodon
	}
	return ids
}

func platformLabel(p domain.Platform) string {
	if p == "" {
		return "search"
	}
	return string(p)
}
