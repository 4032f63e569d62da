package domain

import (
	"encoding/json"
	"fmt"
)

// RawPost is an upstream record of one of the supported platforms. The set of
// implementations is closed: *BlueskyFeedItem and *MastodonStatus.
type RawPost interface {
	RawPlatform() Platform
	rawPost()
}

// BlueskyFeedItem is app.bsky.feed.defs#feedViewPost.
type BlueskyFeedItem struct {
	Post   BlueskyPostView `json:"post"`
	Reason *BlueskyReason  `json:"reason,omitempty"`

	// Raw holds the bytes the item was decoded from.
	Raw json.RawMessage `json:"-"`
}

// BlueskyPostView is app.bsky.feed.defs#postView.
type BlueskyPostView struct {
	URI         string            `json:"uri"`
	CID         string            `json:"cid"`
	Author      BlueskyProfile    `json:"author"`
	Record      BlueskyPostRecord `json:"record"`
	Embed       json.RawMessage   `json:"embed,omitempty"`
	ReplyCount  *int64            `json:"replyCount,omitempty"`
	RepostCount *int64            `json:"repostCount,omitempty"`
	LikeCount   *int64            `json:"likeCount,omitempty"`
	QuoteCount  *int64            `json:"quoteCount,omitempty"`
	IndexedAt   string            `json:"indexedAt"`
}

// BlueskyProfile is app.bsky.actor.defs#profileViewBasic, plus the counters
// of #profileViewDetailed which are absent from the basic view.
type BlueskyProfile struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	Description    string `json:"description,omitempty"`
	FollowersCount int64  `json:"followersCount,omitempty"`
	FollowsCount   int64  `json:"followsCount,omitempty"`
	PostsCount     int64  `json:"postsCount,omitempty"`
}

// BlueskyPostRecord is the app.bsky.feed.post record body.
type BlueskyPostRecord struct {
	Type      string           `json:"$type"`
	Text      string           `json:"text"`
	CreatedAt string           `json:"createdAt"`
	Langs     []string         `json:"langs,omitempty"`
	Reply     *BlueskyReplyRef `json:"reply,omitempty"`
}

// BlueskyReplyRef references the parent and root of a reply chain.
type BlueskyReplyRef struct {
	Root   BlueskyStrongRef `json:"root"`
	Parent BlueskyStrongRef `json:"parent"`
}

// BlueskyStrongRef is com.atproto.repo.strongRef.
type BlueskyStrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// BlueskyReason is the tagged reason union of a feed item.
type BlueskyReason struct {
	Type      string          `json:"$type"`
	By        *BlueskyProfile `json:"by,omitempty"`
	IndexedAt string          `json:"indexedAt,omitempty"`
}

const blueskyReasonRepost = "app.bsky.feed.defs#reasonRepost"

// IsRepost reports whether the reason is a repost.
func (r *BlueskyReason) IsRepost() bool {
	return r != nil && r.Type == blueskyReasonRepost
}

func (*BlueskyFeedItem) RawPlatform() Platform { return PlatformBluesky }
func (*BlueskyFeedItem) rawPost()              {}

func (b *BlueskyFeedItem) UnmarshalJSON(data []byte) error {
	type plain BlueskyFeedItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = BlueskyFeedItem(p)
	b.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (b BlueskyFeedItem) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	type plain BlueskyFeedItem
	return json.Marshal(plain(b))
}

// WrapBlueskyPostView turns a bare postView (search results, bookmarks) into a
// feed item without a reason.
func WrapBlueskyPostView(view json.RawMessage) (*BlueskyFeedItem, error) {
	data, err := json.Marshal(map[string]json.RawMessage{"post": view})
	if err != nil {
		return nil, fmt.Errorf("wrap post view: %w", err)
	}
	var item BlueskyFeedItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode post view: %w", err)
	}
	return &item, nil
}

// MastodonStatus is a Mastodon REST API Status entity.
type MastodonStatus struct {
	ID               string               `json:"id"`
	URI              string               `json:"uri"`
	URL              string               `json:"url,omitempty"`
	CreatedAt        string               `json:"created_at"`
	Content          string               `json:"content"`
	SpoilerText      string               `json:"spoiler_text,omitempty"`
	Account          MastodonAccount      `json:"account"`
	InReplyToID      *string              `json:"in_reply_to_id,omitempty"`
	Reblog           *MastodonStatus      `json:"reblog,omitempty"`
	RepliesCount     int64                `json:"replies_count"`
	ReblogsCount     int64                `json:"reblogs_count"`
	FavouritesCount  int64                `json:"favourites_count"`
	MediaAttachments []MastodonAttachment `json:"media_attachments,omitempty"`
	Card             json.RawMessage      `json:"card,omitempty"`

	// Raw holds the bytes the status was decoded from.
	Raw json.RawMessage `json:"-"`
}

// MastodonAccount is a Mastodon REST API Account entity.
type MastodonAccount struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Acct           string `json:"acct"`
	DisplayName    string `json:"display_name,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	URL            string `json:"url"`
	Note           string `json:"note,omitempty"`
	FollowersCount int64  `json:"followers_count,omitempty"`
	FollowingCount int64  `json:"following_count,omitempty"`
	StatusesCount  int64  `json:"statuses_count,omitempty"`
}

// MastodonAttachment is a Mastodon REST API MediaAttachment entity.
type MastodonAttachment struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	URL         string  `json:"url"`
	PreviewURL  string  `json:"preview_url,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (*MastodonStatus) RawPlatform() Platform { return PlatformMastodon }
func (*MastodonStatus) rawPost()              {}

func (s *MastodonStatus) UnmarshalJSON(data []byte) error {
	type plain MastodonStatus
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = MastodonStatus(p)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (s MastodonStatus) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	type plain MastodonStatus
	return json.Marshal(plain(s))
}
