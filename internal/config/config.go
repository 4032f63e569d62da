package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// BlueskyAppviewHost serves public reads (author feeds, profiles, search).
	BlueskyAppviewHost string

	// BlueskyPDSHost is where the session is created and authenticated reads
	// (likes, bookmarks) are sent.
	BlueskyPDSHost string

	// BlueskyHandle and BlueskyAppPassword enable the authenticated reads.
	// Both are optional.
	BlueskyHandle      string
	BlueskyAppPassword string

	// MastodonInstance is the home instance used for favourites, bookmarks
	// and search. Account lookups go to each account's own host.
	MastodonInstance    string
	MastodonAccessToken string

	// MastodonRateLimit is the request rate per second; 0 disables limiting.
	MastodonRateLimit float64

	// CacheBackend is one of memory, redis or sqlite.
	CacheBackend string
	RedisURL     string
	SQLitePath   string

	AffinityTTL       time.Duration
	AffinityPageLimit int
	SearchPageLimit   int

	CrosspostThreshold float64
	CrosspostWindow    time.Duration

	AffinityBonus float64
	LikeWeight    float64
	RepostWeight  float64
}

// Dedupe returns the crosspost options.
func (c *Config) Dedupe() domain.DedupeOptions {
	return domain.DedupeOptions{Threshold: c.CrosspostThreshold, Window: c.CrosspostWindow}
}

// Ranker returns a ranker with the configured weights over idx.
func (c *Config) Ranker(idx *domain.AffinityIndex) domain.Ranker {
	return domain.Ranker{
		Affinity:      idx,
		AffinityBonus: c.AffinityBonus,
		LikeWeight:    c.LikeWeight,
		RepostWeight:  c.RepostWeight,
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		BlueskyAppviewHost:  envOrDefault("BLUESKY_APPVIEW_HOST", "https://public.api.bsky.app"),
		BlueskyPDSHost:      envOrDefault("BLUESKY_PDS_HOST", "https://bsky.social"),
		BlueskyHandle:       os.Getenv("BLUESKY_HANDLE"),
		BlueskyAppPassword:  os.Getenv("BLUESKY_APP_PASSWORD"),
		MastodonInstance:    os.Getenv("MASTODON_INSTANCE"),
		MastodonAccessToken: os.Getenv("MASTODON_ACCESS_TOKEN"),
		CacheBackend:        envOrDefault("CACHE_BACKEND", CacheMemory),
		RedisURL:            os.Getenv("REDIS_URL"),
		SQLitePath:          envOrDefault("SQLITE_PATH", "allmyposts.db"),
	}

	var err error
	if cfg.Port, err = intEnv("PORT", 3000); err != nil {
		return nil, err
	}
	if cfg.MastodonRateLimit, err = floatEnv("MASTODON_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.AffinityTTL, err = durationEnv("AFFINITY_TTL", domain.DefaultAffinityTTL); err != nil {
		return nil, err
	}
	if cfg.AffinityPageLimit, err = intEnv("AFFINITY_PAGE_LIMIT", domain.DefaultAffinityPageLimit); err != nil {
		return nil, err
	}
	if cfg.SearchPageLimit, err = intEnv("SEARCH_PAGE_LIMIT", domain.DefaultSearchPageLimit); err != nil {
		return nil, err
	}
	if cfg.CrosspostThreshold, err = floatEnv("CROSSPOST_THRESHOLD", domain.DefaultCrosspostThreshold); err != nil {
		return nil, err
	}
	if cfg.CrosspostWindow, err = durationEnv("CROSSPOST_WINDOW", domain.DefaultCrosspostWindow); err != nil {
		return nil, err
	}
	if cfg.AffinityBonus, err = floatEnv("AFFINITY_BONUS", domain.DefaultAffinityBonus); err != nil {
		return nil, err
	}
	if cfg.LikeWeight, err = floatEnv("LIKE_WEIGHT", domain.DefaultLikeWeight); err != nil {
		return nil, err
	}
	if cfg.RepostWeight, err = floatEnv("REPOST_WEIGHT", domain.DefaultRepostWeight); err != nil {
		return nil, err
	}

	switch cfg.CacheBackend {
	case CacheMemory, CacheSQLite:
	case CacheRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when CACHE_BACKEND is redis")
		}
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q", cfg.CacheBackend)
	}
	if cfg.CrosspostThreshold < 0 || cfg.CrosspostThreshold > 1 {
		return nil, fmt.Errorf("CROSSPOST_THRESHOLD must be between 0 and 1")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
