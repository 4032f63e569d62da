package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRanker(t *testing.T) {
	assert := assert.New(t)

	idx := NewAffinityIndex()
	idx.set(PlatformBluesky, []string{"did:plc:friend"})

	friend := mkPost(PlatformBluesky, "friend", "", t0)
	friend.Author = Author{Handle: "friend.test", DID: "did:plc:friend"}

	popular := mkPost(PlatformMastodon, "popular", "", t0)
	popular.LikeCount, popular.RepostCount = 500, 200

	olderTie := mkPost(PlatformMastodon, "older", "", t0.Add(-time.Hour))
	olderTie.LikeCount = 3
	newerTie := mkPost(PlatformMastodon, "newer", "", t0.Add(time.Hour))
	newerTie.RepostCount = 1
	newerTie.LikeCount = 1

	r := NewRanker(idx)
	assert.Equal(1000.0, r.Score(friend))
	assert.Equal(900.0, r.Score(popular))
	assert.Equal(3.0, r.Score(newerTie))

	ranked := r.Rank([]Post{olderTie, popular, newerTie, friend})
	var uris []string
	for _, p := range ranked {
		uris = append(uris, p.URI)
	}
	assert.Equal([]string{"friend", "popular", "newer", "older"}, uris)

	// Weights are configurable.
	r.AffinityBonus = 0
	assert.Equal(0.0, r.Score(friend))

	// A nil index gives no bonus.
	assert.Equal(0.0, NewRanker(nil).Score(friend))
}
