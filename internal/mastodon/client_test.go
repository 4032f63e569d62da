package mastodon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

const statusesBody = `[
  {"id": "30", "uri": "https://m.test/users/me/statuses/30", "created_at": "2024-01-03T00:00:00Z", "content": "<p>third</p>",
   "account": {"id": "1", "username": "me", "acct": "me", "url": "https://m.test/@me"}, "favourites_count": 2},
  {"id": "20", "uri": "https://m.test/users/me/statuses/20", "created_at": "2024-01-02T00:00:00Z", "content": "<p>second</p>",
   "account": {"id": "1", "username": "me", "acct": "me", "url": "https://m.test/@me"}}
]`

func newTestClient(t *testing.T, mux *http.ServeMux, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		Instance:    "home.test",
		AccessToken: token,
		HTTPClient:  srv.Client(),
		BaseURL:     func(host string) string { return srv.URL + "/" + host },
	})
}

func TestAccountStatuses(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var lookups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /m.test/api/v1/accounts/lookup", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		assert.Equal("me", r.URL.Query().Get("acct"))
		w.Write([]byte(`{"id": "1", "username": "me", "acct": "me", "url": "https://m.test/@me", "statuses_count": 2}`))
	})
	mux.HandleFunc("GET /m.test/api/v1/accounts/1/statuses", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal("40", q.Get("limit"))
		assert.Empty(r.Header.Get("Authorization"))
		if q.Get("max_id") == "20" {
			w.Write([]byte(`[]`))
			return
		}
		assert.Equal("true", q.Get("exclude_reblogs"))
		w.Write([]byte(statusesBody))
	})
	c := newTestClient(t, mux, "")
	ctx := context.Background()

	page, err := c.FetchPage(ctx, domain.PageRequest{Identifier: "@me@m.test", HideReposts: true})
	require.NoError(err)
	require.Len(page.Items, 2)
	assert.Equal("20", page.NextCursor)
	assert.Equal("third", domain.Normalize(page.Items[0]).Text)

	page, err = c.FetchPage(ctx, domain.PageRequest{Identifier: "@me@m.test", Cursor: "20", HideReposts: true})
	require.NoError(err)
	assert.Empty(page.Items)
	assert.Empty(page.NextCursor)

	profile, err := c.FetchProfile(ctx, "@me@m.test")
	require.NoError(err)
	assert.Equal("@me@m.test", profile.Handle)
	assert.Equal(int64(2), profile.PostsCount)
	assert.Equal(int32(1), lookups.Load())
}

func TestLookupErrors(t *testing.T) {
	assert := assert.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /m.test/api/v1/accounts/lookup", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "Record not found"}`))
	})
	c := newTestClient(t, mux, "")
	ctx := context.Background()

	_, err := c.FetchProfile(ctx, "@ghost@m.test")
	assert.True(domain.IsNotFound(err))

	_, err = c.FetchPage(ctx, domain.PageRequest{Identifier: "@ghost"})
	var ce *domain.ConfigurationError
	assert.ErrorAs(err, &ce)
}

func TestFavouritesLinkHeader(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /home.test/api/v1/favourites", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("Bearer tok", r.Header.Get("Authorization"))
		if r.URL.Query().Get("max_id") == "" {
			w.Header().Set("Link", `<https://home.test/api/v1/favourites?limit=40&max_id=9876>; rel="next", <https://home.test/api/v1/favourites?limit=40&min_id=9999>; rel="prev"`)
		} else {
			w.Header().Set("Link", `<https://home.test/api/v1/favourites?limit=40&min_id=1>; rel="prev"`)
		}
		w.Write([]byte(statusesBody))
	})
	c := newTestClient(t, mux, "tok")
	ctx := context.Background()

	page, err := c.FetchPage(ctx, domain.PageRequest{Kind: domain.FeedLikes})
	require.NoError(err)
	assert.Len(page.Items, 2)
	assert.Equal("9876", page.NextCursor)

	page, err = c.FetchPage(ctx, domain.PageRequest{Kind: domain.FeedLikes, Cursor: "9876"})
	require.NoError(err)
	assert.Empty(page.NextCursor)

	_, err = newTestClient(t, mux, "").FetchPage(ctx, domain.PageRequest{Kind: domain.FeedBookmarks})
	var ce *domain.ConfigurationError
	assert.ErrorAs(err, &ce)
}

func TestSearch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /home.test/api/v2/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal("statuses", q.Get("type"))
		assert.Equal("true", q.Get("following"))
		assert.Equal("80", q.Get("offset"))
		w.Write([]byte(`{"accounts": [], "hashtags": [], "statuses": ` + statusesBody + `}`))
	})
	mux.HandleFunc("GET /home.test/api/v1/bookmarks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "The access token is invalid"}`))
	})
	c := newTestClient(t, mux, "tok")
	ctx := context.Background()

	page, err := c.FetchPage(ctx, domain.PageRequest{Kind: domain.FeedSearch, Query: "go", Cursor: "80"})
	require.NoError(err)
	assert.Len(page.Items, 2)
	assert.Empty(page.NextCursor)

	_, err = c.FetchPage(ctx, domain.PageRequest{Kind: domain.FeedBookmarks})
	var te *domain.TransportError
	require.ErrorAs(err, &te)
	assert.True(strings.Contains(te.Error(), "access token is invalid"))
	assert.False(IsRateLimited(err))
	assert.True(IsRateLimited(&domain.TransportError{Platform: domain.PlatformMastodon, Err: &APIError{StatusCode: http.StatusTooManyRequests}}))
}

func TestNextMaxID(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("42", nextMaxID(`<https://x/api/v1/bookmarks?max_id=42>; rel="next"`))
	assert.Empty(nextMaxID(`<https://x/api/v1/bookmarks?min_id=42>; rel="prev"`))
	assert.Empty(nextMaxID(""))
}
