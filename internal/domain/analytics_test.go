package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	a := mkPost(PlatformBluesky, "a", "", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	a.LikeCount, a.RepostCount = 4, 1
	b := mkPost(PlatformMastodon, "b", "", time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC))
	b.LikeCount, b.RepostCount = 10, 3
	repost := mkPost(PlatformMastodon, "r", "", t0)
	repost.IsRepost = true
	repost.LikeCount = 1000

	res := Analyze([]Post{a, b, repost}, nil)
	require.NotNil(res)
	assert.Equal(2, res.TotalPosts)
	assert.Equal(int64(14), res.TotalLikes)
	assert.Equal(int64(4), res.TotalReposts)
	assert.Equal(7.0, res.AvgLikes)
	assert.Equal(2.0, res.AvgReposts)
	assert.Equal("b", res.TopPost.URI)
	assert.Equal(1, res.PostsByHour[9])
	assert.Equal(1, res.PostsByHour[23])
	assert.Equal(1, res.ByPlatform[PlatformBluesky])

	berlin := time.FixedZone("CET", 3600)
	res = Analyze([]Post{a, b}, berlin)
	assert.Equal(1, res.PostsByHour[10])
	assert.Equal(1, res.PostsByHour[0])

	assert.Nil(Analyze([]Post{repost}, nil))
	assert.Nil(Analyze(nil, nil))
}
