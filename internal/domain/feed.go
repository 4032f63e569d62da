package domain

// Profile is the public profile of an account on one platform.
type Profile struct {
	Platform       Platform `json:"platform"`
	Handle         string   `json:"handle"`
	DID            string   `json:"did,omitempty"`
	ID             string   `json:"id,omitempty"`
	DisplayName    string   `json:"displayName,omitempty"`
	Avatar         string   `json:"avatar,omitempty"`
	Description    string   `json:"description,omitempty"`
	URL            string   `json:"url,omitempty"`
	FollowersCount int64    `json:"followersCount"`
	FollowsCount   int64    `json:"followsCount"`
	PostsCount     int64    `json:"postsCount"`
}

// View is the render-ready derivation of a post set under a filter
// configuration.
type View struct {
	// Items are the top-level entries in display order: crosspost groups and
	// thread roots.
	Items []FeedItem

	// Posts is the filtered, sorted flat set the items were built from.
	Posts []Post

	// standalone are the filtered posts outside any crosspost group; threads
	// nest over them.
	standalone []Post
}

// BuildView runs the full pipeline: filter, sort, crosspost dedupe, thread
// roots. It is recomputed from scratch on every change.
func BuildView(posts []Post, filters Filters, opts DedupeOptions) View {
	filtered := filters.Apply(posts)
	deduped := Dedupe(filtered, opts)

	standalone := make([]Post, 0, len(deduped))
	for _, item := range deduped {
		if p, ok := item.(Post); ok {
			standalone = append(standalone, p)
		}
	}

	roots := make(map[PostKey]struct{}, len(standalone))
	for _, p := range ThreadRoots(standalone) {
		roots[p.Key()] = struct{}{}
	}

	items := make([]FeedItem, 0, len(deduped))
	for _, item := range deduped {
		if p, ok := item.(Post); ok {
			if _, root := roots[p.Key()]; !root {
				continue
			}
		}
		items = append(items, item)
	}

	return View{Items: items, Posts: filtered, standalone: standalone}
}

// Thread nests the replies of root found in the view.
func (v View) Thread(root Post) *Thread {
	return BuildThread(root, v.standalone)
}

// Groups counts the crosspost groups among the items.
func (v View) Groups() int {
	n := 0
	for _, item := range v.Items {
		if _, ok := item.(CrosspostGroup); ok {
			n++
		}
	}
	return n
}
