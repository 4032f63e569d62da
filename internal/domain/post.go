package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Platform identifies the upstream network a post came from.
type Platform string

const (
	// PlatformBluesky is the centralized network (AT Protocol AppView).
	PlatformBluesky Platform = "bluesky"

	// PlatformMastodon is the federated network.
	PlatformMastodon Platform = "mastodon"
)

// Platforms lists every supported platform in tag order.
var Platforms = []Platform{PlatformBluesky, PlatformMastodon}

// ParsePlatform validates a platform tag.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformBluesky, PlatformMastodon:
		return Platform(s), nil
	}
	return "", &ConfigurationError{Input: s, Reason: "unknown platform"}
}

// Author is the normalized author (or reposter) of a post.
type Author struct {
	// Handle is the user-facing handle. Federated handles are always
	// host-qualified as @user@host.
	Handle string `json:"handle"`

	// DID is the stable account identifier on the centralized platform. Empty
	// for federated authors.
	DID string `json:"did,omitempty"`

	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`

	// URL is the author's profile page, when upstream provides one.
	URL string `json:"url,omitempty"`
}

// Key returns the identifier used for affinity lookups: the DID when there is
// one, otherwise the host-qualified handle.
func (a Author) Key() string {
	if a.DID != "" {
		return a.DID
	}
	return a.Handle
}

// Media is one normalized attachment.
type Media struct {
	// Kind is "image", "video", "gifv", "audio", "external" or "unknown".
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	Alt  string `json:"alt,omitempty"`
}

// Post is the canonical, platform-independent representation of a post. Posts
// are built by Normalize and never mutated afterwards.
type Post struct {
	// URI is the platform-unique stable identifier.
	URI string `json:"uri"`

	// ID is the identifier replies use to point at this post. On Bluesky it
	// equals URI; on Mastodon it is the instance-local status id.
	ID string `json:"id"`

	Platform Platform `json:"platform"`

	// Text is plain text; markup is stripped for the federated platform. It
	// may be empty for media-only posts.
	Text string `json:"text"`

	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`

	// URL is the public web link, when upstream provides one.
	URL string `json:"url,omitempty"`

	ReplyCount  int64 `json:"replyCount"`
	RepostCount int64 `json:"repostCount"`
	LikeCount   int64 `json:"likeCount"`

	// ReplyParentURI references the parent post's ID when this post is a
	// reply. It may point outside the loaded set.
	ReplyParentURI string `json:"replyParentUri,omitempty"`

	IsRepost     bool    `json:"isRepost"`
	RepostAuthor *Author `json:"repostAuthor,omitempty"`

	// Media summarizes the attachments found in Embeds.
	Media []Media `json:"media,omitempty"`

	// Embeds is the platform-specific embed payload, kept opaque.
	Embeds json.RawMessage `json:"embeds,omitempty"`

	// Raw is the upstream record exactly as received.
	Raw json.RawMessage `json:"raw,omitempty"`
}

func (Post) isFeedItem() {}

// Key identifies the post across both platforms.
func (p Post) Key() PostKey {
	return PostKey{Platform: p.Platform, URI: p.URI}
}

// IsReply reports whether the post references a parent.
func (p Post) IsReply() bool {
	return p.ReplyParentURI != ""
}

// HasMedia reports whether the post carries at least one image attachment.
func (p Post) HasMedia() bool {
	for _, m := range p.Media {
		if m.Kind == "image" {
			return true
		}
	}
	return false
}

// Engagement is the sum used by the engagement sort.
func (p Post) Engagement() int64 {
	return p.LikeCount + p.RepostCount
}

func (p Post) String() string {
	return fmt.Sprintf("%s:%s", p.Platform, p.URI)
}

// PostKey is unique across platforms; the two identifier spaces never collide
// but the platform is part of the key anyway.
type PostKey struct {
	Platform Platform
	URI      string
}

// FeedItem is either a Post or a CrosspostGroup.
type FeedItem interface {
	isFeedItem()
}

// CrosspostGroup holds the same content posted on both platforms, ordered by
// platform tag.
type CrosspostGroup struct {
	ID         string  `json:"id"`
	Posts      [2]Post `json:"posts"`
	Similarity float64 `json:"similarity"`
}

func (CrosspostGroup) isFeedItem() {}

// Flatten expands feed items back into posts, groups contributing both of
// their posts in order.
func Flatten(items []FeedItem) []Post {
	out := make([]Post, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case Post:
			out = append(out, v)
		case CrosspostGroup:
			out = append(out, v.Posts[0], v.Posts[1])
		}
	}
	return out
}
