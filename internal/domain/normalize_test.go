package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blueskyRepostJSON = `{
  "post": {
    "uri": "at://did:plc:orig/app.bsky.feed.post/3kabc",
    "cid": "bafyorig",
    "author": {"did": "did:plc:orig", "handle": "orig.bsky.social", "displayName": "Original"},
    "record": {
      "$type": "app.bsky.feed.post",
      "text": "reply text",
      "createdAt": "2024-01-01T10:00:00.000Z",
      "reply": {
        "root": {"uri": "at://did:plc:root/app.bsky.feed.post/3root", "cid": "r"},
        "parent": {"uri": "at://did:plc:parent/app.bsky.feed.post/3parent", "cid": "p"}
      }
    },
    "embed": {
      "$type": "app.bsky.embed.recordWithMedia#view",
      "record": {},
      "media": {"$type": "app.bsky.embed.images#view", "images": [{"fullsize": "https://cdn/img.jpg", "alt": "a cat"}]}
    },
    "likeCount": 7,
    "repostCount": 2,
    "indexedAt": "2024-01-01T10:00:01.000Z"
  },
  "reason": {
    "$type": "app.bsky.feed.defs#reasonRepost",
    "by": {"did": "did:plc:me", "handle": "me.bsky.social"},
    "indexedAt": "2024-01-02T00:00:00.000Z"
  }
}`

func TestNormalizeBluesky(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var item BlueskyFeedItem
	require.NoError(json.Unmarshal([]byte(blueskyRepostJSON), &item))

	post := Normalize(&item)
	assert.Equal(PlatformBluesky, post.Platform)
	assert.Equal("at://did:plc:orig/app.bsky.feed.post/3kabc", post.URI)
	assert.Equal(post.URI, post.ID)
	assert.Equal("reply text", post.Text)
	assert.Equal("orig.bsky.social", post.Author.Handle)
	assert.Equal("did:plc:orig", post.Author.Key())
	assert.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), post.CreatedAt)
	assert.Equal(int64(7), post.LikeCount)
	assert.Equal(int64(2), post.RepostCount)
	assert.Equal(int64(0), post.ReplyCount)
	assert.Equal("at://did:plc:parent/app.bsky.feed.post/3parent", post.ReplyParentURI)
	assert.True(post.IsRepost)
	require.NotNil(post.RepostAuthor)
	assert.Equal("me.bsky.social", post.RepostAuthor.Handle)
	assert.True(post.HasMedia())
	assert.Equal("https://bsky.app/profile/orig.bsky.social/post/3kabc", post.URL)
	assert.JSONEq(blueskyRepostJSON, string(post.Raw))
}

func TestNormalizeBlueskyMinimal(t *testing.T) {
	assert := assert.New(t)

	var item BlueskyFeedItem
	assert.NoError(json.Unmarshal([]byte(`{"post":{"uri":"at://did:plc:x/app.bsky.feed.post/1","author":{"did":"did:plc:x","handle":"x.test"},"record":{"text":"","createdAt":"2024-03-01T00:00:00Z"}}}`), &item))

	post := Normalize(&item)
	assert.Equal("", post.Text)
	assert.False(post.IsRepost)
	assert.Nil(post.RepostAuthor)
	assert.False(post.IsReply())
	assert.False(post.HasMedia())
	assert.Zero(post.LikeCount)
	assert.False(post.CreatedAt.IsZero())
}

const mastodonReblogJSON = `{
  "id": "200",
  "uri": "https://social.example/users/me/statuses/200/activity",
  "created_at": "2024-01-05T12:00:00.000Z",
  "content": "",
  "account": {"id": "1", "username": "me", "acct": "me", "url": "https://social.example/@me"},
  "reblogs_count": 0,
  "favourites_count": 0,
  "replies_count": 0,
  "reblog": {
    "id": "100",
    "uri": "https://other.example/users/alice/statuses/100",
    "url": "https://other.example/@alice/100",
    "created_at": "2024-01-04T08:30:00.000Z",
    "content": "<p>Hello &amp; <a href=\"https://x\">welcome</a></p>",
    "account": {"id": "55", "username": "alice", "acct": "alice@other.example", "url": "https://other.example/@alice"},
    "in_reply_to_id": "99",
    "reblogs_count": 3,
    "favourites_count": 12,
    "replies_count": 1,
    "media_attachments": [{"id": "m1", "type": "image", "url": "https://other.example/m1.png", "description": "chart"}]
  }
}`

func TestNormalizeMastodonReblog(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var status MastodonStatus
	require.NoError(json.Unmarshal([]byte(mastodonReblogJSON), &status))

	post := Normalize(&status)
	assert.Equal(PlatformMastodon, post.Platform)
	assert.Equal("https://other.example/users/alice/statuses/100", post.URI)
	assert.Equal("100", post.ID)
	assert.Equal("Hello & welcome", post.Text)
	assert.Equal("@alice@other.example", post.Author.Handle)
	assert.Equal(int64(12), post.LikeCount)
	assert.Equal(int64(3), post.RepostCount)
	assert.Equal(int64(1), post.ReplyCount)
	assert.Equal("99", post.ReplyParentURI)
	assert.Equal(time.Date(2024, 1, 4, 8, 30, 0, 0, time.UTC), post.CreatedAt)
	assert.True(post.IsRepost)
	require.NotNil(post.RepostAuthor)
	assert.Equal("@me@social.example", post.RepostAuthor.Handle)
	assert.True(post.HasMedia())
	assert.Equal("https://other.example/@alice/100", post.URL)
	assert.JSONEq(mastodonReblogJSON, string(post.Raw))
}

func TestNormalizeMastodonMediaOnly(t *testing.T) {
	assert := assert.New(t)

	status := &MastodonStatus{
		ID:        "7",
		URI:       "https://m.example/statuses/7",
		CreatedAt: "2024-02-02T02:02:02Z",
		Content:   "<p></p>",
		Account:   MastodonAccount{Username: "bob", Acct: "bob", URL: "https://m.example/@bob"},
		MediaAttachments: []MastodonAttachment{
			{ID: "a", Type: "video", URL: "https://m.example/v.mp4"},
		},
	}
	post := Normalize(status)
	assert.Equal("", post.Text)
	assert.Equal("@bob@m.example", post.Author.Handle)
	assert.False(post.IsRepost)
	assert.False(post.HasMedia())
	assert.Len(post.Media, 1)
	assert.NotEmpty(post.Raw)
}

func TestFederatedHandle(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("@bob@m.example", FederatedHandle(MastodonAccount{Username: "bob", Acct: "bob", URL: "https://m.example/@bob"}))
	assert.Equal("@bob@m.example", FederatedHandle(MastodonAccount{Username: "bob", Acct: "bob@m.example"}))
	assert.Equal("@bob", FederatedHandle(MastodonAccount{Acct: "bob"}))
}

func TestNormalizeNil(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(PlatformBluesky, Normalize((*BlueskyFeedItem)(nil)).Platform)
	assert.Equal(PlatformMastodon, Normalize((*MastodonStatus)(nil)).Platform)
}

func TestStripMarkup(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("", StripMarkup(""))
	assert.Equal("plain", StripMarkup("plain"))
	assert.Equal("ab", StripMarkup("<p>a</p><p>b</p>"))
	assert.Equal("1 < 2", StripMarkup("<p>1 &lt; 2</p>"))
}
