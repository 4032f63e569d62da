package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrispStrobe/allmyposts/internal/cachestore"
	"github.com/CrispStrobe/allmyposts/internal/config"
	"github.com/CrispStrobe/allmyposts/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewPlatformsLogin(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accessJwt": "jwt", "refreshJwt": "r", "did": "did:plc:me", "handle": "me.test"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.Config{
		BlueskyAppviewHost: srv.URL,
		BlueskyPDSHost:     srv.URL,
		BlueskyHandle:      "me.test",
		BlueskyAppPassword: "app-password",
		MastodonInstance:   "m.test",
	}
	p, err := NewPlatforms(context.Background(), cfg, discard)
	require.NoError(err)
	assert.True(p.Bluesky.Authenticated())
	assert.Equal("did:plc:me", p.Bluesky.DID())
	assert.Len(p.Clients(), 2)
	assert.NotNil(p.Fetchers()[domain.PlatformMastodon])
}

func TestNewPlatformsAnonymous(t *testing.T) {
	p, err := NewPlatforms(context.Background(), &config.Config{}, discard)
	require.NoError(t, err)
	assert.False(t, p.Bluesky.Authenticated())
}

func TestOpenCache(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closer, err := OpenCache(ctx, &config.Config{CacheBackend: config.CacheMemory, AffinityTTL: time.Hour}, discard)
	require.NoError(err)
	assert.IsType(&cachestore.MemStore{}, store)
	assert.NoError(closer.Close())

	store, closer, err = OpenCache(ctx, &config.Config{
		CacheBackend: config.CacheSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "cache.db"),
		AffinityTTL:  time.Hour,
	}, discard)
	require.NoError(err)
	defer closer.Close()
	require.NoError(store.Set(ctx, "affinity", "k", "v"))
	v, err := store.Get(ctx, "affinity", "k")
	require.NoError(err)
	assert.Equal("v", v)
}
