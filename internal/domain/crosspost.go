package domain

import (
	"time"
)

const (
	// DefaultCrosspostThreshold is the minimum similarity for two posts to be
	// grouped.
	DefaultCrosspostThreshold = 0.9

	// DefaultCrosspostWindow bounds the creation time distance of a pair.
	DefaultCrosspostWindow = 24 * time.Hour
)

const (
	jwBoostThreshold = 0.7
	jwPrefixSize     = 4
	jwPrefixScale    = 0.1
)

// SimilarityFunc scores two texts in [0,1].
type SimilarityFunc func(a, b string) float64

// JaroWinkler is the default text similarity. It compares characters, not
// bytes, and boosts scores above 0.7 by a common prefix of up to four
// characters. Empty text never matches.
func JaroWinkler(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	sim := jaro(ra, rb)
	if sim <= jwBoostThreshold {
		return sim
	}
	prefix := 0
	for prefix < jwPrefixSize && prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
		prefix++
	}
	return sim + float64(prefix)*jwPrefixScale*(1-sim)
}

func jaro(a, b []rune) float64 {
	window := max(max(len(a), len(b))/2-1, 0)
	matchedA := make([]bool, len(a))
	matchedB := make([]bool, len(b))

	matches := 0
	for i, r := range a {
		for j := max(i-window, 0); j <= min(i+window, len(b)-1); j++ {
			if !matchedB[j] && b[j] == r {
				matchedA[i], matchedB[j] = true, true
				matches++
				break
			}
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions, k := 0, 0
	for i, r := range a {
		if !matchedA[i] {
			continue
		}
		for !matchedB[k] {
			k++
		}
		if r != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions)/2)/m) / 3
}

// DedupeOptions tunes crosspost detection. Zero fields take the defaults.
type DedupeOptions struct {
	Threshold  float64
	Window     time.Duration
	Similarity SimilarityFunc
}

func (o DedupeOptions) withDefaults() DedupeOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultCrosspostThreshold
	}
	if o.Window <= 0 {
		o.Window = DefaultCrosspostWindow
	}
	if o.Similarity == nil {
		o.Similarity = JaroWinkler
	}
	return o
}

// Dedupe walks posts in order and pairs each one with its most similar
// unprocessed counterpart on the other platform. Matching is greedy: the first
// post to claim a partner keeps it, and ties go to the earlier candidate.
//
// Cost is quadratic in len(posts).
func Dedupe(posts []Post, opts DedupeOptions) []FeedItem {
	opts = opts.withDefaults()

	items := make([]FeedItem, 0, len(posts))
	processed := make(map[PostKey]struct{}, len(posts))

	for i, post := range posts {
		if _, done := processed[post.Key()]; done {
			continue
		}

		best, bestScore := -1, 0.0
		for j, candidate := range posts {
			if j == i || candidate.Platform == post.Platform {
				continue
			}
			if _, done := processed[candidate.Key()]; done {
				continue
			}
			if !withinWindow(post.CreatedAt, candidate.CreatedAt, opts.Window) {
				continue
			}
			if score := opts.Similarity(post.Text, candidate.Text); score > bestScore {
				best, bestScore = j, score
			}
		}

		processed[post.Key()] = struct{}{}
		if best < 0 || bestScore < opts.Threshold {
			items = append(items, post)
			continue
		}

		match := posts[best]
		processed[match.Key()] = struct{}{}
		items = append(items, newCrosspostGroup(post, match, bestScore))
	}
	return items
}

// newCrosspostGroup orders the pair by platform; the group keeps the URI of
// the post encountered first.
func newCrosspostGroup(a, b Post, similarity float64) CrosspostGroup {
	id := a.URI
	if b.Platform < a.Platform {
		a, b = b, a
	}
	return CrosspostGroup{
		ID:         id,
		Posts:      [2]Post{a, b},
		Similarity: similarity,
	}
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < window
}
