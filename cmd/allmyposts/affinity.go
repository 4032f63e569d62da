package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/CrispStrobe/allmyposts/internal/app"
	"github.com/CrispStrobe/allmyposts/internal/domain"
)

var affinityCmd = &cli.Command{
	Name:  "affinity",
	Usage: "build the index of authors you like, used by best-match search",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bsky-handle",
			EnvVars: []string{"BLUESKY_HANDLE"},
		},
		&cli.StringFlag{
			Name:    "mastodon-handle",
			EnvVars: []string{"MASTODON_HANDLE"},
		},
		&cli.StringFlag{
			Name:  "kind",
			Usage: "likes or bookmarks",
			Value: string(domain.FeedLikes),
		},
		&cli.BoolFlag{
			Name:  "refresh",
			Usage: "ignore the cached index",
		},
		&cli.BoolFlag{
			Name:  "list",
			Usage: "print the author identifiers",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, logger, err := setup(cctx)
		if err != nil {
			return err
		}
		kind, err := domain.ParseFeedKind(cctx.String("kind"))
		if err != nil {
			return err
		}

		ctx := cctx.Context
		p, err := platforms(cctx, cfg, logger)
		if err != nil {
			return err
		}
		cache, closer, err := app.OpenCache(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer closer.Close()

		builder := domain.NewAffinityBuilder(p.Fetchers(), domain.NewAffinityCache(cache, cfg.AffinityTTL), cfg.AffinityPageLimit, logger)
		idx, err := builder.Build(ctx, domain.AffinityRequest{
			Identifiers: identifiers(cctx.String("bsky-handle"), cctx.String("mastodon-handle")),
			Kind:        kind,
			Refresh:     cctx.Bool("refresh"),
		})
		if err != nil {
			return err
		}

		for _, platform := range domain.Platforms {
			if _, ok := idx.ByPlatform[platform]; !ok {
				continue
			}
			fmt.Printf("%s: %d authors\n", platform, idx.Len(platform))
			if cctx.Bool("list") {
				for _, a := range idx.Authors(platform) {
					fmt.Printf("  %s\n", a)
				}
			}
		}
		for _, w := range idx.Warnings {
			fmt.Printf("note: %v\n", w)
		}
		return nil
	},
}
