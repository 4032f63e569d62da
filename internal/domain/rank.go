package domain

import (
	"cmp"
	"slices"
)

// Default best-match weights. The affinity bonus dominates engagement.
const (
	DefaultAffinityBonus = 1000
	DefaultLikeWeight    = 1
	DefaultRepostWeight  = 2
)

// Ranker scores posts for best-match ordering.
type Ranker struct {
	Affinity *AffinityIndex

	AffinityBonus float64
	LikeWeight    float64
	RepostWeight  float64
}

// NewRanker returns a Ranker with the default weights.
func NewRanker(affinity *AffinityIndex) Ranker {
	return Ranker{
		Affinity:      affinity,
		AffinityBonus: DefaultAffinityBonus,
		LikeWeight:    DefaultLikeWeight,
		RepostWeight:  DefaultRepostWeight,
	}
}

// Score is bonus·[author in affinity set] + likes·w + reposts·w.
func (r Ranker) Score(p Post) float64 {
	score := r.LikeWeight*float64(p.LikeCount) + r.RepostWeight*float64(p.RepostCount)
	if r.Affinity.Has(p.Platform, p.Author.Key()) {
		score += r.AffinityBonus
	}
	return score
}

// Rank returns a copy of posts ordered by descending score, newest first on
// ties.
func (r Ranker) Rank(posts []Post) []Post {
	type scored struct {
		post  Post
		score float64
	}
	tmp := make([]scored, len(posts))
	for i, p := range posts {
		tmp[i] = scored{post: p, score: r.Score(p)}
	}
	slices.SortStableFunc(tmp, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return newestFirst(a.post, b.post)
	})

	out := make([]Post, len(tmp))
	for i, s := range tmp {
		out[i] = s.post
	}
	return out
}
