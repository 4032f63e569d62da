package bluesky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

const feedBody = `{
  "feed": [
    {"post": {"uri": "at://did:plc:me/app.bsky.feed.post/1", "cid": "c1", "author": {"did": "did:plc:me", "handle": "me.test"}, "record": {"text": "mine", "createdAt": "2024-01-02T00:00:00Z"}, "indexedAt": "2024-01-02T00:00:00Z"}},
    {"post": {"uri": "at://did:plc:x/app.bsky.feed.post/2", "cid": "c2", "author": {"did": "did:plc:x", "handle": "x.test"}, "record": {"text": "theirs", "createdAt": "2024-01-01T00:00:00Z"}, "indexedAt": "2024-01-01T00:00:00Z"},
     "reason": {"$type": "app.bsky.feed.defs#reasonRepost", "by": {"did": "did:plc:me", "handle": "me.test"}}}
  ],
  "cursor": "next-page"
}`

func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.URL+"/pds", srv.Client(), nil), srv
}

func TestAuthorFeed(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /xrpc/app.bsky.feed.getAuthorFeed", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal("me.test", q.Get("actor"))
		assert.Equal("50", q.Get("limit"))
		assert.Equal("posts_no_replies", q.Get("filter"))
		assert.Equal("abc", q.Get("cursor"))
		assert.Empty(r.Header.Get("Authorization"))
		w.Write([]byte(feedBody))
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	page, err := c.FetchPage(ctx, domain.PageRequest{Identifier: "me.test", Cursor: "abc", HideReplies: true})
	require.NoError(err)
	assert.Equal("next-page", page.NextCursor)
	require.Len(page.Items, 2)

	repost := domain.Normalize(page.Items[1])
	assert.True(repost.IsRepost)
	assert.Equal("theirs", repost.Text)

	page, err = c.FetchPage(ctx, domain.PageRequest{Identifier: "me.test", Cursor: "abc", HideReplies: true, HideReposts: true})
	require.NoError(err)
	assert.Len(page.Items, 1)
}

func TestAuthorFeedNullEntries(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	body := strings.Replace(feedBody, `"feed": [`, `"feed": [null, `, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /xrpc/app.bsky.feed.getAuthorFeed", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	page, err := c.FetchPage(ctx, domain.PageRequest{Identifier: "me.test"})
	require.NoError(err)
	require.Len(page.Items, 2)
	assert.Equal("mine", domain.Normalize(page.Items[0]).Text)

	page, err = c.FetchPage(ctx, domain.PageRequest{Identifier: "me.test", HideReposts: true})
	require.NoError(err)
	assert.Len(page.Items, 1)
}

func TestNotFound(t *testing.T) {
	assert := assert.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /xrpc/app.bsky.actor.getProfile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"InvalidRequest","message":"Profile not found"}`))
	})
	mux.HandleFunc("GET /xrpc/app.bsky.feed.getAuthorFeed", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`upstream down`))
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.FetchProfile(ctx, "ghost.test")
	assert.True(domain.IsNotFound(err))

	_, err = c.FetchPage(ctx, domain.PageRequest{Identifier: "me.test"})
	var te *domain.TransportError
	assert.ErrorAs(err, &te)
	var apiErr *APIError
	assert.ErrorAs(err, &apiErr)
	assert.Equal(http.StatusBadGateway, apiErr.StatusCode)
}

func TestLoginAndLikes(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /pds/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(json.NewDecoder(r.Body).Decode(&body))
		assert.Equal("me.test", body["identifier"])
		json.NewEncoder(w).Encode(map[string]string{"accessJwt": "jwt", "did": "did:plc:me", "handle": "me.test"})
	})
	mux.HandleFunc("GET /pds/xrpc/app.bsky.feed.getActorLikes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("Bearer jwt", r.Header.Get("Authorization"))
		assert.Equal("did:plc:me", r.URL.Query().Get("actor"))
		w.Write([]byte(feedBody))
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.FetchPage(ctx, domain.PageRequest{Kind: domain.FeedLikes})
	var ce *domain.ConfigurationError
	assert.ErrorAs(err, &ce)

	require.NoError(c.Login(ctx, "me.test", "app-password"))
	assert.Equal("did:plc:me", c.DID())

	page, err := c.FetchPage(ctx, domain.PageRequest{Kind: domain.FeedLikes})
	require.NoError(err)
	assert.Len(page.Items, 2)
}

func TestSearchAndFollows(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /xrpc/app.bsky.feed.searchPosts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("golang", r.URL.Query().Get("q"))
		w.Write([]byte(`{"posts": [
			{"uri": "at://did:plc:a/app.bsky.feed.post/1", "author": {"did": "did:plc:a", "handle": "a.test"}, "record": {"text": "golang", "createdAt": "2024-01-01T00:00:00Z"}},
			{"uri": "at://did:plc:b/app.bsky.feed.post/2", "$type": "app.bsky.feed.defs#blockedPost"}
		]}`))
	})
	mux.HandleFunc("GET /xrpc/app.bsky.graph.getFollows", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			w.Write([]byte(`{"follows": [{"did": "did:plc:a", "handle": "a.test"}], "cursor": "p2"}`))
			return
		}
		w.Write([]byte(`{"follows": [{"did": "did:plc:b", "handle": "b.test"}]}`))
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	page, err := c.FetchPage(ctx, domain.PageRequest{Kind: domain.FeedSearch, Query: "golang"})
	require.NoError(err)
	require.Len(page.Items, 1)
	assert.Empty(page.NextCursor)

	dids, err := c.ListFollows(ctx, "me.test")
	require.NoError(err)
	assert.Equal([]string{"did:plc:a", "did:plc:b"}, dids)
}
