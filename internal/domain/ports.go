package domain

import (
	"context"
)

// FeedKind selects which paginated history of an account is fetched.
type FeedKind string

const (
	FeedTimeline  FeedKind = "timeline"
	FeedLikes     FeedKind = "likes"
	FeedBookmarks FeedKind = "bookmarks"
	FeedSearch    FeedKind = "search"
)

// ParseFeedKind validates a feed kind. Empty means timeline.
func ParseFeedKind(s string) (FeedKind, error) {
	switch k := FeedKind(s); k {
	case "":
		return FeedTimeline, nil
	case FeedTimeline, FeedLikes, FeedBookmarks, FeedSearch:
		return k, nil
	}
	return "", &ConfigurationError{Input: s, Reason: "unknown feed kind"}
}

// PageRequest asks a platform for one page of history.
type PageRequest struct {
	// Identifier is the account handle (or DID). Ignored for likes, bookmarks
	// and search on platforms where those are scoped to the authenticated
	// user.
	Identifier string

	// Cursor is the opaque token from the previous page; empty for the first.
	Cursor string

	Kind FeedKind

	// Query is the search text for FeedSearch.
	Query string

	// HideReplies and HideReposts are forwarded to the upstream when it
	// supports filtering server-side.
	HideReplies bool
	HideReposts bool
}

// Page is one page of upstream records. An empty NextCursor ends the stream.
type Page struct {
	Items      []RawPost
	NextCursor string
}

// PageFetcher is the paginated-fetch capability of one platform.
type PageFetcher interface {
	// FetchPage returns the requested page. Transport failures are returned as
	// *TransportError and unknown accounts as *NotFoundError; a page is never
	// returned alongside an error.
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// fetchPage calls f and treats a nil page as an empty, final one.
func fetchPage(ctx context.Context, f PageFetcher, req PageRequest) (*Page, error) {
	page, err := f.FetchPage(ctx, req)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return &Page{}, nil
	}
	return page, nil
}

// ProfileFetcher resolves an account's public profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, identifier string) (*Profile, error)
}

// PlatformClient is everything a feed session needs from one platform.
type PlatformClient interface {
	PageFetcher
	ProfileFetcher
}

// FollowLister lists the DIDs an account follows on the centralized platform.
type FollowLister interface {
	ListFollows(ctx context.Context, identifier string) ([]string, error)
}

// CacheStore is a string key/value store with store-level expiry. Get returns
// an empty string and no error on a miss.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
