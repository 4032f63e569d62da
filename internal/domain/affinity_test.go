package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]string)}
}

func (m *mapStore) Get(ctx context.Context, name, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[name+"/"+key], nil
}

func (m *mapStore) Set(ctx context.Context, name, key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name+"/"+key] = val
	return nil
}

func (m *mapStore) Purge(ctx context.Context, name, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, name+"/"+key)
	return nil
}

func likedBy(did, handle, rkey string) *BlueskyFeedItem {
	return &BlueskyFeedItem{Post: BlueskyPostView{
		URI:    "at://" + did + "/app.bsky.feed.post/" + rkey,
		Author: BlueskyProfile{DID: did, Handle: handle},
		Record: BlueskyPostRecord{Text: "liked", CreatedAt: "2024-01-01T00:00:00Z"},
	}}
}

func TestAffinityBuild(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	bsky := &fakeClient{pages: map[string]*Page{
		"":   {Items: []RawPost{likedBy("did:plc:a", "a.test", "1"), likedBy("did:plc:b", "b.test", "2")}, NextCursor: "p2"},
		"p2": {Items: []RawPost{likedBy("did:plc:a", "a.test", "3")}},
	}}
	masto := &fakeClient{pages: map[string]*Page{
		"": {Items: []RawPost{mastodonItem("5", "fav", t0)}},
	}}

	b := NewAffinityBuilder(map[Platform]PageFetcher{PlatformBluesky: bsky, PlatformMastodon: masto}, nil, 0, nil)
	idx, err := b.Build(ctx, AffinityRequest{Identifiers: map[Platform]string{
		PlatformBluesky:  "me.bsky.social",
		PlatformMastodon: "@me@m.example",
	}})
	require.NoError(err)

	assert.Empty(idx.Warnings)
	assert.Equal([]string{"did:plc:a", "did:plc:b"}, idx.Authors(PlatformBluesky))
	assert.True(idx.Has(PlatformMastodon, "@me@m.example"))
	assert.False(idx.Has(PlatformBluesky, "@me@m.example"))
	assert.Equal(FeedLikes, bsky.requests[0].Kind)
}

func TestAffinityPartial(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	// Endless pages hit the cap.
	pages := map[string]*Page{}
	for i := 0; i < 10; i++ {
		cur := ""
		if i > 0 {
			cur = fmt.Sprint(i)
		}
		pages[cur] = &Page{Items: []RawPost{likedBy(fmt.Sprintf("did:plc:%d", i), "x.test", "r")}, NextCursor: fmt.Sprint(i + 1)}
	}
	bsky := &fakeClient{pages: pages}

	// A page fails mid-walk.
	masto := &fakeClient{
		pages:  map[string]*Page{"": {Items: []RawPost{mastodonItem("5", "fav", t0)}, NextCursor: "5"}},
		failAt: map[string]error{"5": errors.New("502 bad gateway")},
	}

	b := NewAffinityBuilder(map[Platform]PageFetcher{PlatformBluesky: bsky, PlatformMastodon: masto}, nil, 3, nil)
	idx, err := b.Build(ctx, AffinityRequest{Identifiers: map[Platform]string{
		PlatformBluesky:  "me.bsky.social",
		PlatformMastodon: "@me@m.example",
	}})
	require.NoError(err)
	require.Len(idx.Warnings, 2)

	assert.Equal(PlatformBluesky, idx.Warnings[0].Platform)
	assert.Equal(3, idx.Warnings[0].PagesFetched)
	assert.Equal(3, idx.Len(PlatformBluesky))

	assert.Equal(PlatformMastodon, idx.Warnings[1].Platform)
	assert.Equal(1, idx.Warnings[1].PagesFetched)
	var te *TransportError
	assert.ErrorAs(idx.Warnings[1], &te)
	assert.Equal(1, idx.Len(PlatformMastodon))
}

// nilPageFetcher answers every request with no page and no error.
type nilPageFetcher struct{}

func (nilPageFetcher) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	return nil, nil
}

func TestAffinityNilPage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	masto := &fakeClient{pages: map[string]*Page{
		"": {Items: []RawPost{mastodonItem("5", "fav", t0)}},
	}}
	b := NewAffinityBuilder(map[Platform]PageFetcher{PlatformBluesky: nilPageFetcher{}, PlatformMastodon: masto}, nil, 0, nil)
	idx, err := b.Build(context.Background(), AffinityRequest{Identifiers: map[Platform]string{
		PlatformBluesky:  "me.bsky.social",
		PlatformMastodon: "@me@m.example",
	}})
	require.NoError(err)

	assert.Empty(idx.Warnings)
	assert.Zero(idx.Len(PlatformBluesky))
	assert.Equal(1, idx.Len(PlatformMastodon))
}

func TestAffinityCache(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	now := t0
	cache := NewAffinityCache(newMapStore(), time.Hour)
	cache.now = func() time.Time { return now }

	bsky := &fakeClient{pages: map[string]*Page{"": {Items: []RawPost{likedBy("did:plc:a", "a.test", "1")}}}}
	b := NewAffinityBuilder(map[Platform]PageFetcher{PlatformBluesky: bsky}, cache, 0, nil)
	req := AffinityRequest{Identifiers: map[Platform]string{PlatformBluesky: "me.bsky.social"}}

	_, err := b.Build(ctx, req)
	require.NoError(err)
	assert.Len(bsky.requests, 1)

	idx, err := b.Build(ctx, req)
	require.NoError(err)
	assert.Len(bsky.requests, 1)
	assert.True(idx.Has(PlatformBluesky, "did:plc:a"))

	req.Refresh = true
	_, err = b.Build(ctx, req)
	require.NoError(err)
	assert.Len(bsky.requests, 2)

	// Entries past their expiry are misses.
	now = now.Add(time.Hour)
	_, ok, err := cache.Get(ctx, PlatformBluesky, "me.bsky.social")
	require.NoError(err)
	assert.False(ok)

	require.NoError(cache.Put(ctx, PlatformBluesky, "me.bsky.social", []string{"x"}, false))
	require.NoError(cache.Invalidate(ctx, PlatformBluesky, "me.bsky.social"))
	_, ok, err = cache.Get(ctx, PlatformBluesky, "me.bsky.social")
	require.NoError(err)
	assert.False(ok)
}
