package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "BLUESKY_APPVIEW_HOST", "BLUESKY_PDS_HOST", "BLUESKY_HANDLE", "BLUESKY_APP_PASSWORD",
	"MASTODON_INSTANCE", "MASTODON_ACCESS_TOKEN", "MASTODON_RATE_LIMIT", "CACHE_BACKEND",
	"REDIS_URL", "SQLITE_PATH", "AFFINITY_TTL", "AFFINITY_PAGE_LIMIT", "SEARCH_PAGE_LIMIT",
	"CROSSPOST_THRESHOLD", "CROSSPOST_WINDOW", "AFFINITY_BONUS", "LIKE_WEIGHT", "REPOST_WEIGHT",
}

func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	clearEnv(t)

	cfg, err := Load()
	require.NoError(err)
	assert.Equal(3000, cfg.Port)
	assert.Equal("https://public.api.bsky.app", cfg.BlueskyAppviewHost)
	assert.Equal("https://bsky.social", cfg.BlueskyPDSHost)
	assert.Equal(CacheMemory, cfg.CacheBackend)
	assert.Equal(5.0, cfg.MastodonRateLimit)
	assert.Equal(time.Hour, cfg.AffinityTTL)
	assert.Equal(15, cfg.AffinityPageLimit)
	assert.Equal(5, cfg.SearchPageLimit)
	assert.Equal(24*time.Hour, cfg.CrosspostWindow)

	d := cfg.Dedupe()
	assert.Equal(0.9, d.Threshold)

	r := cfg.Ranker(nil)
	assert.Equal(1000.0, r.AffinityBonus)
	assert.Equal(2.0, r.RepostWeight)
}

func TestLoadOverrides(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("CACHE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("CROSSPOST_WINDOW", "2h")
	t.Setenv("LIKE_WEIGHT", "0.5")

	cfg, err := Load()
	require.NoError(err)
	assert.Equal(8080, cfg.Port)
	assert.Equal(CacheSQLite, cfg.CacheBackend)
	assert.Equal("/tmp/x.db", cfg.SQLitePath)
	assert.Equal(2*time.Hour, cfg.CrosspostWindow)
	assert.Equal(0.5, cfg.LikeWeight)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"port":      {"PORT": "abc"},
		"backend":   {"CACHE_BACKEND": "memcached"},
		"redis url": {"CACHE_BACKEND": "redis"},
		"window":    {"CROSSPOST_WINDOW": "a day"},
		"threshold": {"CROSSPOST_THRESHOLD": "1.5"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
