package domain

// Thread is a post with its direct replies, nested to any depth.
type Thread struct {
	Post    Post      `json:"post"`
	Replies []*Thread `json:"replies,omitempty"`
}

// Size counts the posts in the thread, root included.
func (t *Thread) Size() int {
	if t == nil {
		return 0
	}
	n := 1
	for _, r := range t.Replies {
		n += r.Size()
	}
	return n
}

type parentRef struct {
	platform Platform
	id       string
}

// BuildThread nests every post of all that replies, directly or transitively,
// to root. Replies keep their order in all.
func BuildThread(root Post, all []Post) *Thread {
	children := make(map[parentRef][]Post)
	for _, p := range all {
		if p.IsReply() {
			ref := parentRef{platform: p.Platform, id: p.ReplyParentURI}
			children[ref] = append(children[ref], p)
		}
	}
	seen := map[PostKey]struct{}{root.Key(): {}}
	return buildThread(root, children, seen)
}

func buildThread(node Post, children map[parentRef][]Post, seen map[PostKey]struct{}) *Thread {
	t := &Thread{Post: node}
	for _, child := range children[parentRef{platform: node.Platform, id: node.ID}] {
		if _, ok := seen[child.Key()]; ok {
			continue
		}
		seen[child.Key()] = struct{}{}
		t.Replies = append(t.Replies, buildThread(child, children, seen))
	}
	return t
}

// ThreadRoots keeps the posts that are not replies, or whose parent is absent
// from posts.
func ThreadRoots(posts []Post) []Post {
	known := make(map[parentRef]struct{}, len(posts))
	for _, p := range posts {
		known[parentRef{platform: p.Platform, id: p.ID}] = struct{}{}
	}

	roots := make([]Post, 0, len(posts))
	for _, p := range posts {
		if !p.IsReply() {
			roots = append(roots, p)
			continue
		}
		if _, ok := known[parentRef{platform: p.Platform, id: p.ReplyParentURI}]; !ok {
			roots = append(roots, p)
		}
	}
	return roots
}
