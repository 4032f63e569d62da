// Package app wires configuration into the platform clients and cache store
// shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/CrispStrobe/allmyposts/internal/bluesky"
	"github.com/CrispStrobe/allmyposts/internal/cachestore"
	"github.com/CrispStrobe/allmyposts/internal/config"
	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/mastodon"
	"github.com/CrispStrobe/allmyposts/internal/robusthttp"
)

const (
	memCacheCapacity = 10_000
	sqliteMaxRows    = 100_000
	cleanupInterval  = time.Minute
)

// Platforms holds the configured platform clients.
type Platforms struct {
	Bluesky  *bluesky.Client
	Mastodon *mastodon.Client
}

// Clients returns the clients keyed by platform.
func (p *Platforms) Clients() map[domain.Platform]domain.PlatformClient {
	return map[domain.Platform]domain.PlatformClient{
		domain.PlatformBluesky:  p.Bluesky,
		domain.PlatformMastodon: p.Mastodon,
	}
}

// Fetchers returns the clients as page fetchers keyed by platform.
func (p *Platforms) Fetchers() map[domain.Platform]domain.PageFetcher {
	return map[domain.Platform]domain.PageFetcher{
		domain.PlatformBluesky:  p.Bluesky,
		domain.PlatformMastodon: p.Mastodon,
	}
}

// NewPlatforms builds both clients over one retrying HTTP client. When
// Bluesky credentials are configured the client logs in; a failed login is
// returned as an error.
func NewPlatforms(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Platforms, error) {
	httpClient := robusthttp.NewClient(robusthttp.WithLogger(logger))

	bsky := bluesky.NewClient(cfg.BlueskyAppviewHost, cfg.BlueskyPDSHost, httpClient, logger)
	if cfg.BlueskyHandle != "" && cfg.BlueskyAppPassword != "" {
		if err := bsky.Login(ctx, cfg.BlueskyHandle, cfg.BlueskyAppPassword); err != nil {
			return nil, fmt.Errorf("bluesky login: %w", err)
		}
		logger.Info("authenticated with bluesky", "did", bsky.DID())
	}

	masto := mastodon.NewClient(mastodon.Options{
		Instance:    cfg.MastodonInstance,
		AccessToken: cfg.MastodonAccessToken,
		RateLimit:   cfg.MastodonRateLimit,
		HTTPClient:  httpClient,
		Logger:      logger,
	})

	return &Platforms{Bluesky: bsky, Mastodon: masto}, nil
}

// OpenCache returns the configured cache store and the closer releasing it.
// The SQLite store runs its cleanup job until ctx is cancelled.
func OpenCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.CacheStore, io.Closer, error) {
	switch cfg.CacheBackend {
	case config.CacheRedis:
		store, err := cachestore.NewRedisStore(ctx, cfg.RedisURL, cfg.AffinityTTL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis cache")
		return store, store, nil

	case config.CacheSQLite:
		store, err := cachestore.NewSQLiteStore(ctx, cfg.SQLitePath, cfg.AffinityTTL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite cache", "path", cfg.SQLitePath)
		go store.StartCleanupJob(ctx, cleanupInterval, sqliteMaxRows, logger)
		return store, store, nil
	}

	return cachestore.NewMemStore(memCacheCapacity, cfg.AffinityTTL), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
