package domain

import "time"

// Analytics summarizes the original (non-repost) posts of a view.
type Analytics struct {
	TotalPosts   int              `json:"totalPosts"`
	TotalLikes   int64            `json:"totalLikes"`
	TotalReposts int64            `json:"totalReposts"`
	AvgLikes     float64          `json:"avgLikes"`
	AvgReposts   float64          `json:"avgReposts"`
	TopPost      *Post            `json:"topPost,omitempty"`
	PostsByHour  [24]int          `json:"postsByHour"`
	ByPlatform   map[Platform]int `json:"byPlatform"`
}

// Analyze returns nil when posts holds no original posts. Hours are taken in
// loc, UTC when nil.
func Analyze(posts []Post, loc *time.Location) *Analytics {
	if loc == nil {
		loc = time.UTC
	}

	a := &Analytics{ByPlatform: make(map[Platform]int)}
	for i := range posts {
		p := posts[i]
		if p.IsRepost {
			continue
		}
		a.TotalPosts++
		a.TotalLikes += p.LikeCount
		a.TotalReposts += p.RepostCount
		a.PostsByHour[p.CreatedAt.In(loc).Hour()]++
		a.ByPlatform[p.Platform]++
		if a.TopPost == nil || p.LikeCount > a.TopPost.LikeCount {
			a.TopPost = &p
		}
	}
	if a.TotalPosts == 0 {
		return nil
	}

	a.AvgLikes = float64(a.TotalLikes) / float64(a.TotalPosts)
	a.AvgReposts = float64(a.TotalReposts) / float64(a.TotalPosts)
	return a
}
