package domain

import (
	"cmp"
	"slices"
	"strings"
)

// SortBy names a post ordering.
type SortBy string

const (
	SortNewest     SortBy = "newest"
	SortOldest     SortBy = "oldest"
	SortLikes      SortBy = "likes"
	SortReposts    SortBy = "reposts"
	SortEngagement SortBy = "engagement"
)

// ParseSortBy validates a sort name. Empty means newest.
func ParseSortBy(s string) (SortBy, error) {
	switch by := SortBy(strings.ToLower(strings.TrimSpace(s))); by {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortLikes, SortReposts, SortEngagement:
		return by, nil
	}
	return "", &ConfigurationError{Input: s, Reason: "unknown sort order"}
}

// Filters is the view configuration applied to the loaded posts.
type Filters struct {
	SearchTerm  string `json:"searchTerm,omitempty"`
	SortBy      SortBy `json:"sortBy,omitempty"`
	HasMedia    bool   `json:"hasMedia,omitempty"`
	HideReplies bool   `json:"hideReplies,omitempty"`
	HideReposts bool   `json:"hideReposts,omitempty"`
	MinLikes    int64  `json:"minLikes,omitempty"`
}

// Match reports whether p passes every predicate.
func (f Filters) Match(p Post) bool {
	if f.SearchTerm != "" && !strings.Contains(strings.ToLower(p.Text), strings.ToLower(f.SearchTerm)) {
		return false
	}
	if f.HasMedia && !p.HasMedia() {
		return false
	}
	if f.HideReplies {
		if p.IsReply() {
			return false
		}
		// Federated replies to threads outside the account often arrive as
		// plain mentions.
		if p.Platform == PlatformMastodon && strings.HasPrefix(strings.TrimSpace(p.Text), "@") {
			return false
		}
	}
	if f.HideReposts && p.IsRepost {
		return false
	}
	return p.LikeCount >= f.MinLikes
}

// Apply returns the matching posts in the configured order. The input is not
// modified.
func (f Filters) Apply(posts []Post) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	SortPosts(out, f.SortBy)
	return out
}

// SortPosts sorts in place. The sort is stable; unknown orders sort newest
// first.
func SortPosts(posts []Post, by SortBy) {
	slices.SortStableFunc(posts, comparator(by))
}

func comparator(by SortBy) func(a, b Post) int {
	switch by {
	case SortOldest:
		return func(a, b Post) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortLikes:
		return func(a, b Post) int { return cmp.Compare(b.LikeCount, a.LikeCount) }
	case SortReposts:
		return func(a, b Post) int { return cmp.Compare(b.RepostCount, a.RepostCount) }
	case SortEngagement:
		return func(a, b Post) int { return cmp.Compare(b.Engagement(), a.Engagement()) }
	}
	return newestFirst
}

func newestFirst(a, b Post) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}
