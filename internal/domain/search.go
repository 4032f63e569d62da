package domain

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultSearchPageLimit caps the result pages fetched per platform.
const DefaultSearchPageLimit = 5

// SearchEventType tags a search stream event.
type SearchEventType string

const (
	SearchEventPost  SearchEventType = "post"
	SearchEventError SearchEventType = "error"
	SearchEventClose SearchEventType = "close"
)

// SearchEvent is one item of a search stream. Post is set for post events;
// Error carries the message of an error event.
type SearchEvent struct {
	Type     SearchEventType `json:"type"`
	Platform Platform        `json:"platform,omitempty"`
	Post     *Post           `json:"post,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// SearchSort orders collected search results.
type SearchSort string

const (
	SearchBestMatch SearchSort = "bestMatch"
	SearchLikes     SearchSort = "likes"
	SearchNewest    SearchSort = "newest"
)

// ParseSearchSort validates a search order. Empty means best match.
func ParseSearchSort(s string) (SearchSort, error) {
	switch by := SearchSort(s); by {
	case "":
		return SearchBestMatch, nil
	case SearchBestMatch, SearchLikes, SearchNewest:
		return by, nil
	}
	return "", &ConfigurationError{Input: s, Reason: "unknown search order"}
}

// SearchRequest is a full-text search across the user's network.
type SearchRequest struct {
	Query string

	// Identifiers holds the searching user's accounts. On the centralized
	// platform results are restricted to authors this account follows.
	Identifiers map[Platform]string

	// Platforms limits the search; every configured platform when empty.
	Platforms []Platform
}

// Searcher produces search events from every platform in parallel.
type Searcher struct {
	fetchers  map[Platform]PageFetcher
	follows   FollowLister
	pageLimit int
	logger    *slog.Logger
}

// NewSearcher returns a Searcher. follows may be nil, in which case centralized
// results are not restricted.
func NewSearcher(fetchers map[Platform]PageFetcher, follows FollowLister, pageLimit int, logger *slog.Logger) *Searcher {
	if pageLimit <= 0 {
		pageLimit = DefaultSearchPageLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{fetchers: fetchers, follows: follows, pageLimit: pageLimit, logger: logger}
}

// Stream starts the search and returns its events. The channel ends with
// exactly one close event and is then closed, unless ctx is cancelled first.
// Cancelling ctx stops the producers.
func (s *Searcher) Stream(ctx context.Context, req SearchRequest) <-chan SearchEvent {
	events := make(chan SearchEvent)

	go func() {
		defer close(events)

		send := func(ev SearchEvent) bool {
			select {
			case events <- ev:
				searchEvents.WithLabelValues(string(ev.Type)).Inc()
				return true
			case <-ctx.Done():
				return false
			}
		}

		if strings.TrimSpace(req.Query) == "" {
			send(SearchEvent{Type: SearchEventError, Error: "search query is required"})
			send(SearchEvent{Type: SearchEventClose})
			return
		}

		platforms := req.Platforms
		if len(platforms) == 0 {
			platforms = Platforms
		}

		var g errgroup.Group
		for _, p := range platforms {
			if s.fetchers[p] == nil {
				continue
			}
			g.Go(func() error {
				if err := s.searchPlatform(ctx, p, req, send); err != nil && ctx.Err() == nil {
					s.logger.Warn("search failed", "platform", p, "error", err)
					send(SearchEvent{Type: SearchEventError, Platform: p, Error: err.Error()})
				}
				return nil
			})
		}
		_ = g.Wait()

		send(SearchEvent{Type: SearchEventClose})
	}()

	return events
}

var errStreamClosed = errors.New("search stream closed")

func (s *Searcher) searchPlatform(ctx context.Context, platform Platform, req SearchRequest, send func(SearchEvent) bool) error {
	var allowed map[string]struct{}
	if platform == PlatformBluesky && s.follows != nil && req.Identifiers[platform] != "" {
		ident, err := ValidateIdentifier(platform, req.Identifiers[platform])
		if err != nil {
			return err
		}
		dids, err := s.follows.ListFollows(ctx, ident)
		if err != nil {
			return asTransportError(platform, "list follows", err)
		}
		allowed = make(map[string]struct{}, len(dids))
		for _, did := range dids {
			allowed[did] = struct{}{}
		}
	}

	preq := PageRequest{Kind: FeedSearch, Query: req.Query, Identifier: req.Identifiers[platform]}
	for pages := 0; pages < s.pageLimit; pages++ {
		page, err := fetchPage(ctx, s.fetchers[platform], preq)
		if err != nil {
			return asTransportError(platform, "search", err)
		}
		for _, item := range page.Items {
			post := Normalize(item)
			if allowed != nil {
				if _, ok := allowed[post.Author.DID]; !ok {
					continue
				}
			}
			if !send(SearchEvent{Type: SearchEventPost, Platform: platform, Post: &post}) {
				return errStreamClosed
			}
		}
		if page.NextCursor == "" || page.NextCursor == preq.Cursor {
			return nil
		}
		preq.Cursor = page.NextCursor
	}
	return nil
}

// SearchResult is the ranked outcome of a search stream.
type SearchResult struct {
	Posts  []Post              `json:"posts"`
	Counts map[Platform]int    `json:"counts"`
	Errors map[Platform]string `json:"errors,omitempty"`

	// Closed is false when the stream ended without a close event.
	Closed bool `json:"closed"`
}

// CollectSearch accumulates events until close (or the end of the channel)
// and then orders the whole set once. Duplicate posts are dropped.
func CollectSearch(events <-chan SearchEvent, by SearchSort, ranker Ranker) *SearchResult {
	res := &SearchResult{
		Counts: make(map[Platform]int),
		Errors: make(map[Platform]string),
	}
	seen := make(map[PostKey]struct{})

loop:
	for ev := range events {
		switch ev.Type {
		case SearchEventPost:
			if ev.Post == nil {
				continue
			}
			if _, ok := seen[ev.Post.Key()]; ok {
				continue
			}
			seen[ev.Post.Key()] = struct{}{}
			res.Posts = append(res.Posts, *ev.Post)
			res.Counts[ev.Post.Platform]++
		case SearchEventError:
			res.Errors[ev.Platform] = ev.Error
		case SearchEventClose:
			res.Closed = true
			break loop
		}
	}

	res.Posts = SortSearchResults(res.Posts, by, ranker)
	return res
}

// SortSearchResults orders a complete result set.
func SortSearchResults(posts []Post, by SearchSort, ranker Ranker) []Post {
	switch by {
	case SearchLikes:
		out := slices.Clone(posts)
		slices.SortStableFunc(out, func(a, b Post) int {
			if c := cmp.Compare(b.LikeCount, a.LikeCount); c != 0 {
				return c
			}
			return newestFirst(a, b)
		})
		return out
	case SearchNewest:
		out := slices.Clone(posts)
		SortPosts(out, SortNewest)
		return out
	}
	return ranker.Rank(posts)
}
