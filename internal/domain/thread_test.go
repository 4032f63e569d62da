package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(p Post, parent string) Post {
	p.ReplyParentURI = parent
	return p
}

func TestBuildThread(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	root := mkPost(PlatformBluesky, "r", "root", t0)
	c1 := reply(mkPost(PlatformBluesky, "c1", "first", t0.Add(time.Minute)), "r")
	c2 := reply(mkPost(PlatformBluesky, "c2", "second", t0.Add(2*time.Minute)), "r")
	g1 := reply(mkPost(PlatformBluesky, "g1", "grandchild", t0.Add(3*time.Minute)), "c1")
	// Same id space on the other platform must not attach.
	other := reply(mkPost(PlatformMastodon, "x", "elsewhere", t0), "r")

	thread := BuildThread(root, []Post{root, c1, c2, g1, other})
	require.Len(thread.Replies, 2)
	assert.Equal("c1", thread.Replies[0].Post.URI)
	assert.Equal("c2", thread.Replies[1].Post.URI)
	require.Len(thread.Replies[0].Replies, 1)
	assert.Equal("g1", thread.Replies[0].Replies[0].Post.URI)
	assert.Equal(4, thread.Size())
}

func TestBuildThreadCycle(t *testing.T) {
	assert := assert.New(t)

	a := reply(mkPost(PlatformBluesky, "a", "", t0), "b")
	b := reply(mkPost(PlatformBluesky, "b", "", t0), "a")

	thread := BuildThread(a, []Post{a, b})
	assert.Equal(2, thread.Size())
}

func TestThreadRootsReparent(t *testing.T) {
	assert := assert.New(t)

	child := reply(mkPost(PlatformMastodon, "https://m/2", "child", t0.Add(time.Hour)), "1")
	child.ID = "2"
	parent := mkPost(PlatformMastodon, "https://m/1", "parent", t0)
	parent.ID = "1"

	// Parent not loaded yet: the child is a root.
	roots := ThreadRoots([]Post{child})
	assert.Len(roots, 1)

	// Parent arrives: the child nests under it.
	all := []Post{child, parent}
	roots = ThreadRoots(all)
	assert.Len(roots, 1)
	assert.Equal("https://m/1", roots[0].URI)

	thread := BuildThread(parent, all)
	assert.Len(thread.Replies, 1)
	assert.Equal("https://m/2", thread.Replies[0].Post.URI)
}
