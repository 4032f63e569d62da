package domain

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/bluesky-social/indigo/atproto/syntax"
)

// Normalize maps an upstream record to a Post. It never fails: missing
// optional fields become zero values.
func Normalize(raw RawPost) Post {
	switch r := raw.(type) {
	case *BlueskyFeedItem:
		if r == nil {
			return Post{Platform: PlatformBluesky}
		}
		return normalizeBluesky(r)
	case *MastodonStatus:
		if r == nil {
			return Post{Platform: PlatformMastodon}
		}
		return normalizeMastodon(r)
	}
	return Post{}
}

// NormalizeAll normalizes a page of records, preserving order.
func NormalizeAll(items []RawPost) []Post {
	posts := make([]Post, 0, len(items))
	for _, item := range items {
		posts = append(posts, Normalize(item))
	}
	return posts
}

func normalizeBluesky(item *BlueskyFeedItem) Post {
	view := item.Post
	post := Post{
		URI:      view.URI,
		ID:       view.URI,
		Platform: PlatformBluesky,
		Text:     view.Record.Text,
		Author: Author{
			Handle:      view.Author.Handle,
			DID:         view.Author.DID,
			DisplayName: view.Author.DisplayName,
			Avatar:      view.Author.Avatar,
			URL:         blueskyProfileURL(view.Author),
		},
		CreatedAt:   parseTimestamp(view.Record.CreatedAt, view.IndexedAt),
		URL:         blueskyPostURL(view.Author, view.URI),
		ReplyCount:  deref(view.ReplyCount),
		RepostCount: deref(view.RepostCount),
		LikeCount:   deref(view.LikeCount),
		Media:       blueskyMedia(view.Embed),
		Embeds:      view.Embed,
		Raw:         rawBytes(item, item.Raw),
	}
	if view.Record.Reply != nil {
		post.ReplyParentURI = view.Record.Reply.Parent.URI
	}
	if item.Reason.IsRepost() {
		post.IsRepost = true
		if by := item.Reason.By; by != nil {
			post.RepostAuthor = &Author{
				Handle:      by.Handle,
				DID:         by.DID,
				DisplayName: by.DisplayName,
				Avatar:      by.Avatar,
			}
		}
	}
	return post
}

func normalizeMastodon(status *MastodonStatus) Post {
	target := status
	if status.Reblog != nil {
		target = status.Reblog
	}

	post := Post{
		URI:      firstNonEmpty(target.URI, target.URL, target.ID),
		ID:       target.ID,
		Platform: PlatformMastodon,
		Text:     StripMarkup(target.Content),
		Author: Author{
			Handle:      FederatedHandle(target.Account),
			DisplayName: target.Account.DisplayName,
			Avatar:      target.Account.Avatar,
			URL:         target.Account.URL,
		},
		CreatedAt:   parseTimestamp(target.CreatedAt),
		URL:         firstNonEmpty(target.URL, target.URI),
		ReplyCount:  target.RepliesCount,
		RepostCount: target.ReblogsCount,
		LikeCount:   target.FavouritesCount,
		Media:       mastodonMedia(target.MediaAttachments),
		Raw:         rawBytes(status, status.Raw),
	}
	if target.InReplyToID != nil {
		post.ReplyParentURI = *target.InReplyToID
	}
	if len(target.MediaAttachments) > 0 {
		post.Embeds, _ = json.Marshal(target.MediaAttachments)
	}
	if status.Reblog != nil {
		post.IsRepost = true
		post.RepostAuthor = &Author{
			Handle:      FederatedHandle(status.Account),
			DisplayName: status.Account.DisplayName,
			Avatar:      status.Account.Avatar,
			URL:         status.Account.URL,
		}
	}
	return post
}

// FederatedHandle synthesizes @user@host from the account's profile URL,
// since the acct field is bare for accounts local to the queried instance.
func FederatedHandle(acc MastodonAccount) string {
	local, acctHost, _ := strings.Cut(strings.TrimPrefix(acc.Acct, "@"), "@")
	if acc.Username != "" {
		local = acc.Username
	}

	host := ""
	if u, err := url.Parse(acc.URL); err == nil {
		host = u.Hostname()
	}
	if host == "" {
		host = acctHost
	}
	if host == "" {
		return "@" + local
	}
	return "@" + local + "@" + host
}

var markupTag = regexp.MustCompile(`<[^>]*>?`)

// StripMarkup returns the text content of an HTML fragment with entities
// decoded. An empty result is valid.
func StripMarkup(content string) string {
	if content == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return markupTag.ReplaceAllString(content, "")
	}
	return doc.Text()
}

func blueskyMedia(embed json.RawMessage) []Media {
	if len(embed) == 0 {
		return nil
	}
	var view struct {
		Type   string `json:"$type"`
		Images []struct {
			Fullsize string `json:"fullsize"`
			Thumb    string `json:"thumb"`
			Alt      string `json:"alt"`
		} `json:"images"`
		Playlist string `json:"playlist"`
		Alt      string `json:"alt"`
		External *struct {
			URI string `json:"uri"`
		} `json:"external"`
		Media json.RawMessage `json:"media"`
	}
	if err := json.Unmarshal(embed, &view); err != nil {
		return nil
	}

	switch view.Type {
	case "app.bsky.embed.images#view":
		media := make([]Media, 0, len(view.Images))
		for _, img := range view.Images {
			media = append(media, Media{Kind: "image", URL: firstNonEmpty(img.Fullsize, img.Thumb), Alt: img.Alt})
		}
		return media
	case "app.bsky.embed.video#view":
		return []Media{{Kind: "video", URL: view.Playlist, Alt: view.Alt}}
	case "app.bsky.embed.external#view":
		if view.External != nil {
			return []Media{{Kind: "external", URL: view.External.URI}}
		}
	case "app.bsky.embed.recordWithMedia#view":
		return blueskyMedia(view.Media)
	}
	return nil
}

func mastodonMedia(attachments []MastodonAttachment) []Media {
	if len(attachments) == 0 {
		return nil
	}
	media := make([]Media, 0, len(attachments))
	for _, att := range attachments {
		m := Media{Kind: att.Type, URL: firstNonEmpty(att.URL, att.PreviewURL)}
		if m.Kind == "" {
			m.Kind = "unknown"
		}
		if att.Description != nil {
			m.Alt = *att.Description
		}
		media = append(media, m)
	}
	return media
}

func blueskyProfileURL(author BlueskyProfile) string {
	ident := firstNonEmpty(author.Handle, author.DID)
	if ident == "" {
		return ""
	}
	return "https://bsky.app/profile/" + ident
}

func blueskyPostURL(author BlueskyProfile, uri string) string {
	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return ""
	}
	rkey := aturi.RecordKey()
	if rkey == "" {
		return ""
	}
	return blueskyProfileURL(author) + "/post/" + rkey.String()
}

func parseTimestamp(candidates ...string) time.Time {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if t, err := dateparse.ParseAny(s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func rawBytes(v any, raw json.RawMessage) json.RawMessage {
	if len(raw) > 0 {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func deref(n *int64) int64 {
	if n == nil || *n < 0 {
		return 0
	}
	return *n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
